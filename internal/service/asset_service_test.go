package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAssetService_SaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	svc := NewAssetService(dir, "http://example.com/")

	a, err := svc.Save(context.Background(), "audio/mpeg", strings.NewReader("id3"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(a.Filename, ".mp3") {
		t.Errorf("expected .mp3 name, got %s", a.Filename)
	}
	if a.URL != "http://example.com/assets/"+a.Filename {
		t.Errorf("unexpected url %s", a.URL)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the stored asset, got %d entries", len(entries))
	}

	if err := svc.Delete(context.Background(), a.Filename); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, a.Filename)); !os.IsNotExist(err) {
		t.Errorf("expected asset removed, stat err = %v", err)
	}
}

func TestAssetService_RejectsUnsupportedType(t *testing.T) {
	svc := NewAssetService(t.TempDir(), "")
	if _, err := svc.Save(context.Background(), "text/html", strings.NewReader("<p>")); !errors.Is(err, ErrUnsupportedAsset) {
		t.Errorf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestAssetService_DeleteRejectsPaths(t *testing.T) {
	svc := NewAssetService(t.TempDir(), "")
	for _, name := range []string{"", "../secret", "a/b.png", ".upload-1"} {
		if err := svc.Delete(context.Background(), name); !errors.Is(err, ErrInvalidAssetName) {
			t.Errorf("Delete(%q) = %v, want ErrInvalidAssetName", name, err)
		}
	}
	if err := svc.Delete(context.Background(), "missing.png"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
}
