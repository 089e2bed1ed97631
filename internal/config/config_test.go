package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "SERVER_PORT", "PUBLIC_URL", "RENDER_ENGINE", "QUEUE_DISPATCHER",
		"QUEUE_STORE", "REDIS_ADDR", "POSTGRES_DSN", "JWT_SECRET", "JWT_SECRET_FILE",
		"RENDER_CONCURRENCY", "RENDER_FRAME_DELAY", "QUEUE_WORKER_LEASE_TTL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Server.PublicURL != "http://localhost:8000" {
		t.Errorf("expected default public url, got %s", cfg.Server.PublicURL)
	}
	if cfg.Render.Engine != EngineSimulated || cfg.Render.RendersDir != "renders" || cfg.Render.CompositionID != "CineVideo" {
		t.Errorf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.Render.FrameDelay != 10*time.Millisecond {
		t.Errorf("expected 10ms frame delay, got %s", cfg.Render.FrameDelay)
	}
	if cfg.Queue.Dispatcher != DispatcherLocal || cfg.Queue.Store != StoreMemory {
		t.Errorf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Queue.WorkerLeaseTTL != 30*time.Second {
		t.Errorf("expected 30s worker lease, got %s", cfg.Queue.WorkerLeaseTTL)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.R2.Enabled() || cfg.GDrive.Enabled() {
		t.Error("expected publishers disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("RENDER_ENGINE", "FFmpeg")
	t.Setenv("RENDER_CONCURRENCY", "0")
	t.Setenv("RENDER_FRAME_DELAY", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.PublicURL != "http://localhost:9000" {
		t.Errorf("expected public url to follow port, got %s", cfg.Server.PublicURL)
	}
	if cfg.Render.Engine != EngineFFmpeg {
		t.Errorf("expected ffmpeg engine, got %s", cfg.Render.Engine)
	}
	if cfg.Render.Concurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.Render.Concurrency)
	}
	if cfg.Render.FrameDelay != 0 {
		t.Errorf("expected zero frame delay, got %s", cfg.Render.FrameDelay)
	}
}

func TestLoad_RejectsInvalidCombinations(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown engine":       {"RENDER_ENGINE": "blender"},
		"asynq without redis":  {"QUEUE_DISPATCHER": "asynq"},
		"redis store no redis": {"QUEUE_STORE": "redis"},
		"postgres without dsn": {"QUEUE_STORE": "postgres"},
		"unknown store":        {"QUEUE_STORE": "etcd"},
		"short worker lease": {
			"QUEUE_DISPATCHER":       "asynq",
			"REDIS_ADDR":             "localhost:6379",
			"QUEUE_WORKER_LEASE_TTL": "100ms",
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_SecretFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "jwt_secret")
	if err := os.WriteFile(path, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != "s3cret" {
		t.Errorf("expected secret from file, got %q", cfg.JWT.Secret)
	}
}
