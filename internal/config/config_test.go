package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Sampler.IntervalMS != 1500 {
		t.Fatalf("expected default sampler interval 1500, got %d", cfg.Sampler.IntervalMS)
	}
	if cfg.Transcript.ConfidenceThreshold != 60 {
		t.Fatalf("expected default threshold 60, got %d", cfg.Transcript.ConfidenceThreshold)
	}
	if cfg.Transcript.HistorySize != 10 {
		t.Fatalf("expected default history size 10, got %d", cfg.Transcript.HistorySize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGND_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SIGND_BUS_USERNAME", "alice")
	t.Setenv("SIGND_BUS_PASSWORD", "secret")
	t.Setenv("SIGND_CAMERA_MODE", "http")
	t.Setenv("SIGND_CAMERA_SNAPSHOT_URL", "http://cam.local/snap.jpg")
	t.Setenv("SIGND_VISION_MODE", "ollama")
	t.Setenv("SIGND_VISION_MODEL", "llava:13b")
	t.Setenv("SIGND_VISION_API_KEY", "sk-test")
	t.Setenv("SIGND_SAMPLER_INTERVAL_MS", "500")
	t.Setenv("SIGND_TRANSCRIPT_CONFIDENCE_THRESHOLD", "75")
	t.Setenv("SIGND_STORE_PATH", "./tmp.db")
	t.Setenv("SIGND_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Camera.Mode != "http" || cfg.Camera.SnapshotURL != "http://cam.local/snap.jpg" {
		t.Fatalf("expected camera override, got %+v", cfg.Camera)
	}
	if cfg.Vision.Mode != "ollama" || cfg.Vision.Model != "llava:13b" {
		t.Fatalf("expected vision override, got %+v", cfg.Vision)
	}
	if cfg.Vision.APIKey != "sk-test" {
		t.Fatalf("expected api key from environment")
	}
	if cfg.Sampler.IntervalMS != 500 {
		t.Fatalf("expected sampler interval 500, got %d", cfg.Sampler.IntervalMS)
	}
	if cfg.Transcript.ConfidenceThreshold != 75 {
		t.Fatalf("expected threshold 75, got %d", cfg.Transcript.ConfidenceThreshold)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
	if cfg.Store.RetentionMode != "persistent" {
		t.Fatalf("expected store retention mode override")
	}
}

func TestValidateRejectsBadSampler(t *testing.T) {
	t.Setenv("SIGND_SAMPLER_INTERVAL_MS", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero sampler interval")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("SIGND_CAMERA_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec camera without command")
	}
}
