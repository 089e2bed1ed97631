package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRun_MissingDirIsSuccess(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(filepath.Join(t.TempDir(), "requests"), &out, &errOut); code != 0 {
		t.Errorf("expected exit 0, got %d (%s)", code, errOut.String())
	}
}

func TestRun_EmptyDirIsSuccess(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# requests")

	var out, errOut bytes.Buffer
	if code := run(dir, &out, &errOut); code != 0 {
		t.Errorf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "no request files") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRun_ValidJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"frameRate": 30, "scenes": [{"assets": ["a.jpg"], "durationInSeconds": 3}]}`)
	writeFile(t, dir, "b.yaml", `
frameRate: 30
scenes:
  - assets: [a.jpg]
    durationInSeconds: 5
    transitionAfter: fade
    transitionDurationInSeconds: 1
  - images: [b.jpg]
    durationInSeconds: 5
`)

	var out, errOut bytes.Buffer
	if code := run(dir, &out, &errOut); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "a.json (90 frames)") {
		t.Errorf("expected frame count for a.json, got %q", out.String())
	}
	if !strings.Contains(out.String(), "b.yaml (270 frames)") {
		t.Errorf("expected frame count for b.yaml, got %q", out.String())
	}
}

func TestRun_ReportsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", `{"scenes": [{"assets": ["a.jpg"], "durationInSeconds": 3}]}`)
	writeFile(t, dir, "bad.json", `{"scenes": [{"assets": [], "durationInSeconds": 0}]}`)
	writeFile(t, dir, "broken.json", `{"scenes": [`)

	var out, errOut bytes.Buffer
	if code := run(dir, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "FAIL bad.json") || !strings.Contains(errOut.String(), "scenes[0].durationInSeconds") {
		t.Errorf("expected field errors for bad.json, got %q", errOut.String())
	}
	if !strings.Contains(errOut.String(), "FAIL broken.json") {
		t.Errorf("expected parse failure for broken.json, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "ok   good.json") {
		t.Errorf("expected good.json to pass, got %q", out.String())
	}
}
