package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// JobID is the opaque identity the server assigns to a generation job.
type JobID string

func (id JobID) String() string { return string(id) }

func ParseJobID(raw string) (JobID, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("video id is required")
	}
	return JobID(v), nil
}

// Snapshot is one status report. Fields the client does not model are kept
// in Extra untouched.
type Snapshot struct {
	Status    string                     `json:"status"`
	Progress  int                        `json:"progress"`
	Message   string                     `json:"message,omitempty"`
	VideoPath string                     `json:"video_path,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

var snapshotKnownFields = map[string]bool{
	"status":     true,
	"progress":   true,
	"message":    true,
	"video_path": true,
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("status payload is not an object")
	}

	var out Snapshot
	if v, ok := raw["status"]; ok {
		if err := json.Unmarshal(v, &out.Status); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
	}
	if v, ok := raw["progress"]; ok && string(v) != "null" {
		var p float64
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
		out.Progress = ClampProgress(p)
	}
	if v, ok := raw["message"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &out.Message); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
	}
	if v, ok := raw["video_path"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &out.VideoPath); err != nil {
			return fmt.Errorf("decode video_path: %w", err)
		}
	}
	for k, v := range raw {
		if snapshotKnownFields[k] {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}
	*s = out
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		m[k] = v
	}
	m["status"] = s.Status
	m["progress"] = s.Progress
	if s.Message != "" {
		m["message"] = s.Message
	}
	if s.VideoPath != "" {
		m["video_path"] = s.VideoPath
	}
	return json.Marshal(m)
}

func ClampProgress(p float64) int {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	if p >= 100 {
		return 100
	}
	return int(math.Round(p))
}

// LedgerEntry is one completed job in the local gallery.
type LedgerEntry struct {
	ID        JobID     `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
}

type Template struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Theme       string `json:"theme,omitempty"`
}

const (
	DefaultAspectRatio     = "16:9"
	DefaultDurationSeconds = 30
	DefaultTemplate        = "high_visibility"
	MinDurationSeconds     = 15
	MaxDurationSeconds     = 60
)

var SupportedAspectRatios = []string{"16:9", "9:16", "1:1"}

type GenerateOptions struct {
	AspectRatio     string `json:"aspect_ratio"`
	DurationSeconds int    `json:"duration"`
	Template        string `json:"template"`
}

// Normalize fills defaults for unset fields.
func (o GenerateOptions) Normalize() GenerateOptions {
	out := o
	out.AspectRatio = strings.TrimSpace(out.AspectRatio)
	if out.AspectRatio == "" {
		out.AspectRatio = DefaultAspectRatio
	}
	if out.DurationSeconds == 0 {
		out.DurationSeconds = DefaultDurationSeconds
	}
	out.Template = strings.TrimSpace(out.Template)
	if out.Template == "" {
		out.Template = DefaultTemplate
	}
	return out
}

func (o GenerateOptions) Validate() error {
	supported := false
	for _, ar := range SupportedAspectRatios {
		if o.AspectRatio == ar {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("aspect ratio %q is not supported (use %s)", o.AspectRatio, strings.Join(SupportedAspectRatios, ", "))
	}
	if o.DurationSeconds < MinDurationSeconds || o.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("duration must be between %d and %d seconds, got %d", MinDurationSeconds, MaxDurationSeconds, o.DurationSeconds)
	}
	return nil
}
