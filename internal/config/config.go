package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port           int     `json:"port"`
	MediaDir       string  `json:"media_dir"`
	StylePath      string  `json:"style_path"`
	CacheDir       string  `json:"cache_dir"`
	MaxStreams     int     `json:"max_streams"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
	LogLevel       string  `json:"log_level"`
	LogFormat      string  `json:"log_format"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	TraceSample    float64 `json:"trace_sample"`
	ShowVersion    bool    `json:"-"`
}

// Default returns the configuration used when no flag or variable is set
func Default() *Config {
	return &Config{
		Port:           3000,
		MediaDir:       "./fimls",
		StylePath:      "",
		CacheDir:       "",
		MaxStreams:     0,
		RateLimitRPS:   0,
		RateLimitBurst: 50,
		LogLevel:       "info",
		LogFormat:      "text",
		OTLPEndpoint:   "",
		TraceSample:    0.1,
	}
}

// Load parses command line flags, then applies environment overrides
func Load() *Config {
	return LoadFrom(flag.CommandLine, os.Args[1:], os.Getenv)
}

// LoadFrom is Load with injectable flag set, arguments and environment lookup
func LoadFrom(fs *flag.FlagSet, args []string, getenv func(string) string) *Config {
	config := Default()

	fs.IntVar(&config.Port, "port", config.Port, "Port to listen on")
	fs.StringVar(&config.MediaDir, "media-dir", config.MediaDir, "Directory containing the films")
	fs.StringVar(&config.StylePath, "style", config.StylePath, "Stylesheet served at /style.css (embedded default when empty)")
	fs.StringVar(&config.CacheDir, "cache-dir", config.CacheDir, "Directory for the catalog snapshot cache (disabled when empty)")
	fs.IntVar(&config.MaxStreams, "max-streams", config.MaxStreams, "Maximum concurrent media streams (0 = unlimited)")
	fs.Float64Var(&config.RateLimitRPS, "rate-limit", config.RateLimitRPS, "Requests per second allowed across all clients (0 = disabled)")
	fs.IntVar(&config.RateLimitBurst, "rate-burst", config.RateLimitBurst, "Rate limiter burst size")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "Log format: text or json")
	fs.StringVar(&config.OTLPEndpoint, "otlp-endpoint", config.OTLPEndpoint, "OTLP/HTTP trace collector, e.g. http://localhost:4318 (tracing off when empty)")
	fs.Float64Var(&config.TraceSample, "trace-sample", config.TraceSample, "Fraction of requests traced, 0.0-1.0")
	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")
	_ = fs.Parse(args)

	// Override with environment variables
	if port := getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if mediaDir := getenv("MEDIA_DIR"); mediaDir != "" {
		config.MediaDir = mediaDir
	}
	if style := getenv("STYLE_PATH"); style != "" {
		config.StylePath = style
	}
	if cacheDir := getenv("CACHE_DIR"); cacheDir != "" {
		config.CacheDir = cacheDir
	}
	if maxStreams := getenv("MAX_STREAMS"); maxStreams != "" {
		if n, err := strconv.Atoi(maxStreams); err == nil {
			config.MaxStreams = n
		}
	}
	if rps := getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			config.RateLimitRPS = v
		}
	}
	if burst := getenv("RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			config.RateLimitBurst = n
		}
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if format := getenv("LOG_FORMAT"); format != "" {
		config.LogFormat = format
	}
	if endpoint := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		config.OTLPEndpoint = endpoint
	}
	if sample := getenv("OTEL_TRACE_SAMPLE_RATE"); sample != "" {
		if v, err := strconv.ParseFloat(sample, 64); err == nil {
			config.TraceSample = v
		}
	}

	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	config.LogFormat = strings.ToLower(strings.TrimSpace(config.LogFormat))
	config.OTLPEndpoint = strings.TrimSpace(config.OTLPEndpoint)

	return config
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("media directory cannot be empty")
	}
	if c.MaxStreams < 0 {
		return fmt.Errorf("max streams cannot be negative")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		return fmt.Errorf("trace sample rate must be between 0 and 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
