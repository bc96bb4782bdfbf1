// Package media retrieves finished videos: a direct download through the
// API client, with the platform URL opener as fallback.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"vidgen/internal/localstore"
	"vidgen/internal/model"
)

const downloadPath = "/api/v1/video/"

type Strategy string

const (
	StrategyDownload Strategy = "download"
	StrategyOpen     Strategy = "open"
)

// MediaFetcher streams the media body for a job; api.Client implements it.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, id model.JobID) (io.ReadCloser, error)
}

type Opener interface {
	Open(ctx context.Context, target string) error
}

// DownloadError wraps any failure of the direct download.
type DownloadError struct {
	ID  model.JobID
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download video %s: %v", e.ID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ResolveMediaURL derives the download locator for id. It does no I/O.
func ResolveMediaURL(base string, id model.JobID) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + downloadPath + url.PathEscape(string(id)) + "/download"
}

// FileName is the name a downloaded video is saved under.
func FileName(id model.JobID) string {
	return "video_" + sanitize(string(id)) + ".mp4"
}

func sanitize(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}

type Options struct {
	BaseURL string
	Dir     string
	Opener  Opener
	Logger  zerolog.Logger
}

type Facade struct {
	fetcher MediaFetcher
	opener  Opener
	baseURL string
	dir     string
	logger  zerolog.Logger
}

type Saved struct {
	ID    model.JobID `json:"id"`
	Path  string      `json:"path"`
	Bytes int64       `json:"bytes"`
}

// Result reports which strategy served a Save. PrimaryErr keeps the
// download failure when the fallback was used.
type Result struct {
	ID         model.JobID `json:"id"`
	Strategy   Strategy    `json:"strategy"`
	Path       string      `json:"path,omitempty"`
	Bytes      int64       `json:"bytes,omitempty"`
	Locator    string      `json:"locator"`
	PrimaryErr error       `json:"-"`
}

func New(fetcher MediaFetcher, opts Options) *Facade {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = "."
	}
	opener := opts.Opener
	if opener == nil {
		opener = ExecOpener{}
	}
	return &Facade{
		fetcher: fetcher,
		opener:  opener,
		baseURL: opts.BaseURL,
		dir:     dir,
		logger:  opts.Logger,
	}
}

func (f *Facade) Locate(id model.JobID) string {
	return ResolveMediaURL(f.baseURL, id)
}

// Download saves the media for id into the download directory. The file
// appears only once the whole payload has been written.
func (f *Facade) Download(ctx context.Context, id model.JobID) (Saved, error) {
	if strings.TrimSpace(string(id)) == "" {
		return Saved{}, &DownloadError{ID: id, Err: errors.New("video id is required")}
	}
	if f.fetcher == nil {
		return Saved{}, &DownloadError{ID: id, Err: errors.New("media fetcher is not configured")}
	}

	body, err := f.fetcher.FetchMedia(ctx, id)
	if err != nil {
		return Saved{}, &DownloadError{ID: id, Err: err}
	}
	defer body.Close()

	target := filepath.Join(f.dir, FileName(id))
	n, err := localstore.WriteFrom(target, body)
	if err != nil {
		return Saved{}, &DownloadError{ID: id, Err: err}
	}
	f.logger.Info().Str("video_id", id.String()).Str("path", target).Int64("bytes", n).Msg("video saved")
	return Saved{ID: id, Path: target, Bytes: n}, nil
}

// Open hands the media locator to the environment's URL opener.
func (f *Facade) Open(ctx context.Context, id model.JobID) error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("open video: video id is required")
	}
	locator := f.Locate(id)
	if err := f.opener.Open(ctx, locator); err != nil {
		return fmt.Errorf("open video %s: %w", id, err)
	}
	f.logger.Info().Str("video_id", id.String()).Str("locator", locator).Msg("video opened")
	return nil
}

// Save tries Download and falls back to Open when it fails.
func (f *Facade) Save(ctx context.Context, id model.JobID) (Result, error) {
	res := Result{ID: id, Locator: f.Locate(id)}
	saved, err := f.Download(ctx, id)
	if err == nil {
		res.Strategy = StrategyDownload
		res.Path = saved.Path
		res.Bytes = saved.Bytes
		return res, nil
	}

	f.logger.Warn().Err(err).Str("video_id", id.String()).Msg("download failed, opening locator instead")
	res.Strategy = StrategyOpen
	res.PrimaryErr = err
	if openErr := f.Open(ctx, id); openErr != nil {
		return res, errors.Join(err, openErr)
	}
	return res, nil
}

// ExecOpener launches the platform's default URL handler. The handler
// outlives ctx: it is only checked before launch.
type ExecOpener struct{}

func (ExecOpener) Open(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args := openCommand(runtime.GOOS, target)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}
