package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryRespectsBoundaries(t *testing.T) {
	violations, err := checkBoundaries(filepath.Join("..", "internal"))
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

func TestCheckBoundariesReportsForbiddenImport(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("api/client.go", "package api\n\nimport _ \"vidgen/internal/media\"\n")
	write("api/client_test.go", "package api\n\nimport _ \"vidgen/internal/cli\"\n")
	write("model/types.go", "package model\n\nimport _ \"fmt\"\n")
	write("widgets/w.go", "package widgets\n")

	violations, err := checkBoundaries(root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("violations got %d want 2: %v", len(violations), violations)
	}
	joined := strings.Join(violations, "\n")
	if !strings.Contains(joined, "api -> media is forbidden") {
		t.Fatalf("missing api -> media violation: %s", joined)
	}
	if !strings.Contains(joined, `unknown source package "widgets"`) {
		t.Fatalf("missing unknown package violation: %s", joined)
	}
}
