package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

const counter = `
name: counter
turbo: true
stage:
  variables:
    - name: n
  scripts:
    - when: flag
      do:
        - repeat:
            times: 4
            do:
              - change: {var: n, by: 2}
        - stop_all
sprites:
  - name: cat
    scripts:
      - when: flag
        do:
          - move: 3
`

func writeProject(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return path
}

func TestRunProject(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run(context.Background(), out, []string{writeProject(t, counter)}); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out.String(), "stage.n = 8") {
		t.Fatalf("missing final variable in output:\n%s", out)
	}
}

func TestRunProjectOverRedis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	out := &bytes.Buffer{}
	args := []string{"-redis", s.Addr(), writeProject(t, counter)}
	if err := run(context.Background(), out, args); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	// Teardown keeps the monitors so the final values stay readable.
	if got := s.HGet("scrap:var:Stage:n", "value"); got != "8" {
		t.Fatalf("expected final monitor value 8 in redis, got %q", got)
	}
}

func TestHelpExitsCleanly(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run(context.Background(), out, []string{"-h"}); err != nil {
		t.Fatalf("help should not fail: %v", err)
	}
	if !strings.Contains(out.String(), "-turbo") {
		t.Fatalf("expected flag help, got:\n%s", out)
	}
}

func TestMissingProject(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run(context.Background(), out, nil); err == nil {
		t.Fatal("expected usage error")
	}
	if err := run(context.Background(), out, []string{"/does/not/exist.yaml"}); err == nil {
		t.Fatal("expected load error")
	}
}
