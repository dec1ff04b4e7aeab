package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigRelPath = ".apiscout/config.yaml"
	defaultStoreRelPath  = ".apiscout/apiscout.db"
)

type InferenceConfig struct {
	MultiplesThreshold  float64 `yaml:"multiples_threshold"`
	ArithmeticThreshold float64 `yaml:"arithmetic_threshold"`
	ResponseSampleSize  int     `yaml:"response_sample_size"`
}

type FilterConfig struct {
	SuccessStatuses  []int    `yaml:"success_statuses"`
	IgnoreExtensions []string `yaml:"ignore_extensions"`
	IgnorePaths      []string `yaml:"ignore_paths"`
	IgnoreSubstrings []string `yaml:"ignore_substrings"`
}

type SanitizeConfig struct {
	QueryParams []string `yaml:"query_params"`
	BodyFields  []string `yaml:"body_fields"`
	Replacement string   `yaml:"replacement"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	MaxBodyMB  int    `yaml:"max_body_mb"`
}

type CaptureConfig struct {
	Workers          int           `yaml:"workers"`
	MaxPages         int           `yaml:"max_pages"`
	PageTimeout      time.Duration `yaml:"page_timeout"`
	Deadline         time.Duration `yaml:"deadline"`
	SkipExtensions   []string      `yaml:"skip_extensions"`
	IgnoreSubstrings []string      `yaml:"ignore_substrings"`
	Output           string        `yaml:"output"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Filter    FilterConfig    `yaml:"filter"`
	Sanitize  SanitizeConfig  `yaml:"sanitize"`
	Output    OutputConfig    `yaml:"output"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Log       LogConfig       `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields. The filter ignore lists have no default,
// so every 200 record with a body qualifies until rules are configured.
// A list set to [] in YAML is non-nil and is left empty.
func (c *Config) SetDefaults() {
	if c.Inference.MultiplesThreshold == 0 {
		c.Inference.MultiplesThreshold = 0.8
	}
	if c.Inference.ArithmeticThreshold == 0 {
		c.Inference.ArithmeticThreshold = 0.8
	}
	if c.Inference.ResponseSampleSize == 0 {
		c.Inference.ResponseSampleSize = 3
	}
	if len(c.Filter.SuccessStatuses) == 0 {
		c.Filter.SuccessStatuses = []int{200}
	}
	if c.Sanitize.QueryParams == nil {
		c.Sanitize.QueryParams = []string{"token", "access_token", "api_key", "apikey", "key", "signature"}
	}
	if c.Sanitize.BodyFields == nil {
		c.Sanitize.BodyFields = []string{"password", "secret", "token", "api_key", "access_token", "refresh_token", "credential"}
	}
	if c.Sanitize.Replacement == "" {
		c.Sanitize.Replacement = "***REDACTED***"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"text"}
	}
	if c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, defaultStoreRelPath)
		} else {
			c.Store.Path = "apiscout.db"
		}
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}
	if c.Server.MaxBodyMB == 0 {
		c.Server.MaxBodyMB = 32
	}
	if c.Capture.Workers == 0 {
		c.Capture.Workers = 5
	}
	if c.Capture.MaxPages == 0 {
		c.Capture.MaxPages = 10000
	}
	if c.Capture.PageTimeout == 0 {
		c.Capture.PageTimeout = 20 * time.Second
	}
	if c.Capture.Deadline == 0 {
		c.Capture.Deadline = 30 * time.Minute
	}
	if c.Capture.SkipExtensions == nil {
		c.Capture.SkipExtensions = []string{".svg", ".pdf", ".jpg", ".jpeg"}
	}
	if c.Capture.IgnoreSubstrings == nil {
		c.Capture.IgnoreSubstrings = []string{"mc.yandex", ".svg"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var validFormats = map[string]struct{}{"text": {}, "json": {}, "markdown": {}, "openapi": {}}

func (c *Config) Validate() error {
	if err := validThreshold("inference.multiples_threshold", c.Inference.MultiplesThreshold); err != nil {
		return err
	}
	if err := validThreshold("inference.arithmetic_threshold", c.Inference.ArithmeticThreshold); err != nil {
		return err
	}
	if c.Inference.ResponseSampleSize < 0 {
		return errors.New("inference.response_sample_size cannot be negative")
	}
	for _, f := range c.Output.Formats {
		if _, ok := validFormats[strings.ToLower(f)]; !ok {
			return fmt.Errorf("output.formats: unsupported format %q", f)
		}
	}
	if c.Capture.Workers < 1 {
		return errors.New("capture.workers must be positive")
	}
	return nil
}

// ValidateOutput additionally checks that the output dir is writable.
func (c *Config) ValidateOutput() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}
	if err := ensureWritableDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir not writable: %w", err)
	}
	return nil
}

func validThreshold(name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setFloat(&c.Inference.MultiplesThreshold, "APISCOUT_MULTIPLES_THRESHOLD")
	setFloat(&c.Inference.ArithmeticThreshold, "APISCOUT_ARITHMETIC_THRESHOLD")
	setString(&c.Output.Dir, "APISCOUT_OUTPUT_DIR")
	setString(&c.Store.Path, "APISCOUT_STORE_PATH")
	setString(&c.Server.Host, "APISCOUT_SERVER_HOST")
	setInt(&c.Server.Port, "APISCOUT_SERVER_PORT")
	setInt(&c.Capture.Workers, "APISCOUT_CAPTURE_WORKERS")
	setString(&c.Log.Level, "APISCOUT_LOG_LEVEL")
	setString(&c.Log.Format, "APISCOUT_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
