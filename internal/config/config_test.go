package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.MaxSize != 1000 || cfg.Queue.Workers != 2 {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Dispatch.ParticleTimeout.Duration() != 300*time.Second {
		t.Errorf("particle timeout = %s", cfg.Dispatch.ParticleTimeout.Duration())
	}
	if cfg.Synth.MemoryTopK != 3 || cfg.Memory.SimilarityThreshold != 0.7 {
		t.Errorf("retrieval defaults = %d, %f", cfg.Synth.MemoryTopK, cfg.Memory.SimilarityThreshold)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quantumd.yaml")
	yaml := `
queue:
  max_size: 50
dispatch:
  particle_timeout: 10
  wave_timeout: 1m30s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.MaxSize != 50 {
		t.Errorf("max size = %d", cfg.Queue.MaxSize)
	}
	// Bare numbers are seconds; duration strings also work.
	if cfg.Dispatch.ParticleTimeout.Duration() != 10*time.Second {
		t.Errorf("particle timeout = %s", cfg.Dispatch.ParticleTimeout.Duration())
	}
	if cfg.Dispatch.WaveTimeout.Duration() != 90*time.Second {
		t.Errorf("wave timeout = %s", cfg.Dispatch.WaveTimeout.Duration())
	}
	// Untouched keys keep their defaults.
	if cfg.Queue.Workers != 2 {
		t.Errorf("workers = %d", cfg.Queue.Workers)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("QUEUE_MAX_SIZE", "7")
	t.Setenv("DISPATCH_EMBED_TIMEOUT", "5")
	t.Setenv("ENDPOINTS_GENERATIVE_URL", "http://example.test/v1/chat/completions")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.MaxSize != 7 {
		t.Errorf("max size = %d", cfg.Queue.MaxSize)
	}
	if cfg.Dispatch.EmbedTimeout.Duration() != 5*time.Second {
		t.Errorf("embed timeout = %s", cfg.Dispatch.EmbedTimeout.Duration())
	}
	if cfg.Endpoints.Generative.URL != "http://example.test/v1/chat/completions" {
		t.Errorf("generative url = %s", cfg.Endpoints.Generative.URL)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.MaxSize != 1000 {
		t.Errorf("max size = %d", cfg.Queue.MaxSize)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Setenv("QUEUE_MAX_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Errorf("zero queue size accepted")
	}
}
