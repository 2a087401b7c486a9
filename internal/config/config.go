package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the dispatch core. YAML file first, then
// environment variables (dotted key -> upper underscore, e.g. queue.maxSize
// -> QUEUE_MAX_SIZE) override individual fields.
type Config struct {
	StatePath string `yaml:"state_path"` // root of the persisted memory layout

	Queue struct {
		MaxSize int `yaml:"max_size"`
		Workers int `yaml:"workers"`
	} `yaml:"queue"`

	Dispatch struct {
		ParticleTimeout Seconds `yaml:"particle_timeout"`
		WaveTimeout     Seconds `yaml:"wave_timeout"`
		EmbedTimeout    Seconds `yaml:"embed_timeout"`
		RequestDeadline Seconds `yaml:"request_deadline"`
		GracePeriod     Seconds `yaml:"grace_period"`
	} `yaml:"dispatch"`

	Synth struct {
		MemoryTopK int `yaml:"memory_top_k"`
	} `yaml:"synth"`

	Memory struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
	} `yaml:"memory"`

	Profile struct {
		RecentContextLines int `yaml:"recent_context_lines"`
	} `yaml:"profile"`

	Shutdown struct {
		DrainPeriod Seconds `yaml:"drain_period"`
	} `yaml:"shutdown"`

	Endpoints struct {
		Generative EndpointConfig `yaml:"generative"`
		Contextual EndpointConfig `yaml:"contextual"`
		Embedding  EndpointConfig `yaml:"embedding"`
	} `yaml:"endpoints"`

	Discord struct {
		Token     string `yaml:"token"`
		ChannelID string `yaml:"channel_id"`
	} `yaml:"discord"`
}

// Seconds is a duration configured as a bare number of seconds. A Go
// duration string ("2m30s") also works in YAML.
type Seconds time.Duration

// Duration converts to a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	var n float64
	if err := value.Decode(&n); err == nil {
		*s = Seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", str, err)
	}
	*s = Seconds(d)
	return nil
}

// EndpointConfig selects one remote inference backend.
type EndpointConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
	Auth  string `yaml:"auth"` // bearer token, optional
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	cfg := &Config{StatePath: "state"}
	cfg.Queue.MaxSize = 1000
	cfg.Queue.Workers = 2
	cfg.Dispatch.ParticleTimeout = Seconds(300 * time.Second)
	cfg.Dispatch.WaveTimeout = Seconds(60 * time.Second)
	cfg.Dispatch.EmbedTimeout = Seconds(30 * time.Second)
	cfg.Dispatch.RequestDeadline = Seconds(600 * time.Second)
	cfg.Dispatch.GracePeriod = Seconds(2 * time.Second)
	cfg.Synth.MemoryTopK = 3
	cfg.Memory.SimilarityThreshold = 0.7
	cfg.Profile.RecentContextLines = 10
	cfg.Shutdown.DrainPeriod = Seconds(30 * time.Second)
	cfg.Endpoints.Generative.URL = "http://localhost:1234/v1/chat/completions"
	cfg.Endpoints.Generative.Model = "deepseek/deepseek-r1-0528-qwen3-8b"
	cfg.Endpoints.Contextual.URL = "http://localhost:11434/api/generate"
	cfg.Endpoints.Contextual.Model = "qwen2.5:7b"
	cfg.Endpoints.Embedding.URL = "http://localhost:11434/api/embeddings"
	cfg.Endpoints.Embedding.Model = "nomic-embed-text"
	return cfg
}

// Load reads the YAML file at path (missing file is fine) and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("STATE_PATH", &c.StatePath)
	envInt("QUEUE_MAX_SIZE", &c.Queue.MaxSize)
	envInt("QUEUE_WORKERS", &c.Queue.Workers)
	envSeconds("DISPATCH_PARTICLE_TIMEOUT", &c.Dispatch.ParticleTimeout)
	envSeconds("DISPATCH_WAVE_TIMEOUT", &c.Dispatch.WaveTimeout)
	envSeconds("DISPATCH_EMBED_TIMEOUT", &c.Dispatch.EmbedTimeout)
	envSeconds("DISPATCH_REQUEST_DEADLINE", &c.Dispatch.RequestDeadline)
	envSeconds("DISPATCH_GRACE_PERIOD", &c.Dispatch.GracePeriod)
	envInt("SYNTH_MEMORY_TOP_K", &c.Synth.MemoryTopK)
	envFloat("MEMORY_SIMILARITY_THRESHOLD", &c.Memory.SimilarityThreshold)
	envInt("PROFILE_RECENT_CONTEXT_LINES", &c.Profile.RecentContextLines)
	envSeconds("SHUTDOWN_DRAIN_PERIOD", &c.Shutdown.DrainPeriod)
	envString("ENDPOINTS_GENERATIVE_URL", &c.Endpoints.Generative.URL)
	envString("ENDPOINTS_GENERATIVE_MODEL", &c.Endpoints.Generative.Model)
	envString("ENDPOINTS_GENERATIVE_AUTH", &c.Endpoints.Generative.Auth)
	envString("ENDPOINTS_CONTEXTUAL_URL", &c.Endpoints.Contextual.URL)
	envString("ENDPOINTS_CONTEXTUAL_MODEL", &c.Endpoints.Contextual.Model)
	envString("ENDPOINTS_EMBEDDING_URL", &c.Endpoints.Embedding.URL)
	envString("ENDPOINTS_EMBEDDING_MODEL", &c.Endpoints.Embedding.Model)
	envString("DISCORD_TOKEN", &c.Discord.Token)
	envString("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)
}

func (c *Config) validate() error {
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.maxSize must be positive, got %d", c.Queue.MaxSize)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("memory.similarityThreshold must be in [0,1], got %v", c.Memory.SimilarityThreshold)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// envSeconds reads a bare number of seconds, matching the documented config
// keys (dispatch.particleTimeout etc. are specified in seconds).
func envSeconds(key string, dst *Seconds) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = Seconds(time.Duration(n) * time.Second)
		}
	}
}
