package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration
type Config struct {
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Auth        AuthConfig        `toml:"auth" yaml:"auth"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	Whisper     WhisperConfig     `toml:"whisper" yaml:"whisper"`
	Transcripts TranscriptsConfig `toml:"transcripts" yaml:"transcripts"`
	Gemini      GeminiConfig      `toml:"gemini" yaml:"gemini"`
	DID         DIDConfig         `toml:"did" yaml:"did"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type AuthConfig struct {
	APIKey string `toml:"api_key" yaml:"api_key"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// WhisperConfig selects and configures the speech recognition backend
type WhisperConfig struct {
	Backend     string `toml:"backend" yaml:"backend"`
	Command     string `toml:"command" yaml:"command"`
	Model       string `toml:"model" yaml:"model"`
	Device      string `toml:"device" yaml:"device"`
	ComputeType string `toml:"compute_type" yaml:"compute_type"`
	Language    string `toml:"language" yaml:"language"`
	BeamSize    int    `toml:"beam_size" yaml:"beam_size"`
	ScratchDir  string `toml:"scratch_dir" yaml:"scratch_dir"`
	MediaRoot   string `toml:"media_root" yaml:"media_root"`
	OpenAIKey   string `toml:"openai_api_key" yaml:"openai_api_key"`
	OpenAIURL   string `toml:"openai_base_url" yaml:"openai_base_url"`
	OpenAIModel string `toml:"openai_model" yaml:"openai_model"`
}

type TranscriptsConfig struct {
	ZeroTimestampIsMissing bool `toml:"zero_timestamp_is_missing" yaml:"zero_timestamp_is_missing"`
}

// GeminiConfig holds generative text settings
type GeminiConfig struct {
	APIKey          string      `toml:"api_key" yaml:"api_key"`
	BaseURL         string      `toml:"base_url" yaml:"base_url"`
	Model           string      `toml:"model" yaml:"model"`
	Timeout         Duration    `toml:"timeout" yaml:"timeout"`
	Temperature     float64     `toml:"temperature" yaml:"temperature"`
	TopP            float64     `toml:"top_p" yaml:"top_p"`
	TopK            int         `toml:"top_k" yaml:"top_k"`
	MaxOutputTokens int         `toml:"max_output_tokens" yaml:"max_output_tokens"`
	Retry           RetryConfig `toml:"retry" yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" yaml:"max_attempts"`
	Unit        Duration `toml:"unit" yaml:"unit"`
	Min         int      `toml:"min" yaml:"min"`
	Max         int      `toml:"max" yaml:"max"`
}

// DIDConfig holds talking avatar settings
type DIDConfig struct {
	APIURL    string   `toml:"api_url" yaml:"api_url"`
	APIKey    string   `toml:"api_key" yaml:"api_key"`
	SourceURL string   `toml:"source_url" yaml:"source_url"`
	VoiceID   string   `toml:"voice_id" yaml:"voice_id"`
	Timeout   Duration `toml:"timeout" yaml:"timeout"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration scalar
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     Duration{5 * time.Minute},
			WriteTimeout:    Duration{30 * time.Minute},
			ShutdownTimeout: Duration{30 * time.Second},
			MaxUploadBytes:  2 << 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path: "./brainspace.db",
		},
		Whisper: WhisperConfig{
			Backend:     "whisperx",
			Command:     "whisperx",
			Model:       "tiny",
			Device:      "cpu",
			ComputeType: "float32",
			BeamSize:    5,
		},
		Gemini: GeminiConfig{
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Model:           "gemini-2.0-flash",
			Timeout:         Duration{120 * time.Second},
			Temperature:     1.0,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 8192,
			Retry: RetryConfig{
				MaxAttempts: 5,
				Unit:        Duration{time.Second},
				Min:         2,
				Max:         30,
			},
		},
		DID: DIDConfig{
			APIURL:  "https://api.d-id.com",
			Timeout: Duration{60 * time.Second},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		path = os.ExpandEnv(path)
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing yaml config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parsing toml config %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv uses the variable names of the original deployment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"X_API_KEY":            &c.Auth.APIKey,
		"GEMINI_API_KEY":       &c.Gemini.APIKey,
		"OPENAI_API_KEY":       &c.Whisper.OpenAIKey,
		"DID_API_URL":          &c.DID.APIURL,
		"DID_API_KEY":          &c.DID.APIKey,
		"AGENT_MALE_IMAGE_URL": &c.DID.SourceURL,
		"AGENT_MALE_VOICE":     &c.DID.VoiceID,
		"BRAINSPACE_DB":        &c.Database.Path,
		"BRAINSPACE_LOG_LEVEL": &c.Log.Level,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Addr = ":" + v
	}
	return nil
}

// Validate checks values the service cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	switch c.Whisper.Backend {
	case "whisperx", "openai":
	default:
		errs = append(errs, fmt.Errorf("whisper.backend %q is not one of whisperx, openai", c.Whisper.Backend))
	}
	if c.Gemini.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("gemini.retry.max_attempts must be at least 1"))
	}
	if c.Gemini.Retry.Min > c.Gemini.Retry.Max {
		errs = append(errs, errors.New("gemini.retry.min must not exceed gemini.retry.max"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
