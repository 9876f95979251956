package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	APIKey    string `env:"API_KEY"`
	RateLimit string `env:"RATE_LIMIT" envDefault:"5/minute"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"s3"`
	BucketName     string `env:"BUCKET_NAME"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKey   string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	LocalBucketDir string `env:"LOCAL_BUCKET_DIR" envDefault:"./bucket"`

	TranscribeProvider string        `env:"TRANSCRIBE_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	WhisperURL         string        `env:"WHISPER_URL"`
	TranscribeModel    string        `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	TranscribeLanguage string        `env:"TRANSCRIBE_LANGUAGE"`
	TranscribeTimeout  time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"5m"`

	MaxFileSize       int64    `env:"MAX_FILE_SIZE" envDefault:"26214400"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:".mp3,.mp4,.m4a,.wav,.webm,.mpeg,.mpga"`
	AllowedMIMETypes  []string `env:"ALLOWED_MIME_TYPES" envSeparator:"," envDefault:"audio/mpeg,video/mp4,audio/mp4,audio/x-m4a,audio/wav,video/webm,audio/webm,video/mpeg"`
	TimeWindow        int      `env:"TIME_WINDOW" envDefault:"60"` // minutes

	ScratchDir   string `env:"SCRATCH_DIR"`
	RunTimezone  string `env:"RUN_TIMEZONE" envDefault:"America/Chicago"`
	BatchWorkers int    `env:"BATCH_WORKERS" envDefault:"1"`

	// Derived by Validate.
	location *time.Location
	rateSpec RateSpec
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile    string
	HTTPAddr   string
	LogLevel   string
	ScratchDir string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.ScratchDir != "" {
		cfg.ScratchDir = overrides.ScratchDir
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges, normalizes list values and fills the derived fields.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "s3", "local":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be s3 or local, got %q", c.StorageBackend)
	}
	switch c.TranscribeProvider {
	case "openai", "whisper":
	default:
		return fmt.Errorf("TRANSCRIBE_PROVIDER must be openai or whisper, got %q", c.TranscribeProvider)
	}
	if c.TimeWindow < 1 {
		return fmt.Errorf("TIME_WINDOW must be >= 1, got %d", c.TimeWindow)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be >= 1, got %d", c.BatchWorkers)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("MAX_FILE_SIZE must be >= 1, got %d", c.MaxFileSize)
	}

	loc, err := time.LoadLocation(c.RunTimezone)
	if err != nil {
		return fmt.Errorf("RUN_TIMEZONE: %w", err)
	}
	c.location = loc

	spec, err := ParseRateSpec(c.RateLimit)
	if err != nil {
		return fmt.Errorf("RATE_LIMIT: %w", err)
	}
	c.rateSpec = spec

	c.AllowedExtensions = NormalizeExtensions(c.AllowedExtensions)
	c.AllowedMIMETypes = trimAll(c.AllowedMIMETypes)
	return nil
}

// Location is the zone run timestamps are formatted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// RateSpec is the parsed RATE_LIMIT.
func (c *Config) RateSpec() RateSpec { return c.rateSpec }

// Window returns the recency window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.TimeWindow) * time.Minute
}

// Missing lists required settings that are empty for the selected backends.
func (c *Config) Missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.StorageBackend == "s3" {
		if c.BucketName == "" {
			missing = append(missing, "BUCKET_NAME")
		}
		if c.AWSAccessKey == "" {
			missing = append(missing, "AWS_ACCESS_KEY_ID")
		}
		if c.AWSSecretKey == "" {
			missing = append(missing, "AWS_SECRET_ACCESS_KEY")
		}
	}
	switch c.TranscribeProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "whisper":
		if c.WhisperURL == "" {
			missing = append(missing, "WHISPER_URL")
		}
	}
	return missing
}

// NormalizeExtensions lower-cases extensions, adds a missing leading dot and
// drops blanks and duplicates.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func trimAll(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RateSpec is a parsed "N/unit" request limit.
type RateSpec struct {
	Count  int
	Period time.Duration
}

// Limit returns the token refill rate.
func (r RateSpec) Limit() rate.Limit {
	if r.Count <= 0 || r.Period <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(r.Count) / r.Period.Seconds())
}

// Burst returns the bucket size: a caller may spend the whole allowance at once.
func (r RateSpec) Burst() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}

func (r RateSpec) String() string {
	return fmt.Sprintf("%d/%s", r.Count, r.Period)
}

var ratePeriods = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseRateSpec parses limits such as "5/minute", "100/hour" or "10/s".
func ParseRateSpec(s string) (RateSpec, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateSpec{}, fmt.Errorf("invalid rate limit %q: want N/unit", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 1 {
		return RateSpec{}, fmt.Errorf("invalid rate limit %q: count must be a positive integer", s)
	}
	period, ok := ratePeriods[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return RateSpec{}, fmt.Errorf("invalid rate limit %q: unknown unit %q", s, unit)
	}
	return RateSpec{Count: n, Period: period}, nil
}
