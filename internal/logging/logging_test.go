package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelDefaultsToWarn(t *testing.T) {
	lvl, err := ParseLevel("")
	if err != nil {
		t.Fatalf("parse empty level: %v", err)
	}
	if lvl != zerolog.WarnLevel {
		t.Fatalf("level got %v want %v", lvl, zerolog.WarnLevel)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected invalid level to fail")
	}
}

func TestNewJSONWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", FormatJSON, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Str("video_id", "vid_1").Msg("tracking")
	out := buf.String()
	if !strings.Contains(out, `"video_id":"vid_1"`) || !strings.Contains(out, `"message":"tracking"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml", &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}
