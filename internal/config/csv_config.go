package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/validation"
)

// Delete backends
const (
	DeleteNone  = "none"
	DeleteHTTP  = "http"
	DeleteS3    = "s3"
	DeleteAzure = "azure"
	DeleteBus   = "bus"
)

// Config represents the intake client configuration
type Config struct {
	// Remote store
	BaseURL string // Upload endpoint is BaseURL + /upload

	// Deletion notifications
	DeleteBackend     string // "none", "http", "s3", "azure", "bus"
	DeleteURL         string // http backend; defaults to BaseURL + /delete
	S3Bucket          string
	S3Region          string
	ObjectPrefix      string // Key prefix for s3 and azure backends
	AzureContainerURL string // Container URL, optionally with a SAS query

	// Intake behaviour
	Multiple          bool // Accumulate files instead of replacing
	MaxFileSize       int64
	AllowedExtensions []string
	MaxConcurrent     int
	IncludeHidden     bool
	PageSize          int // Directory read page size

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // Never read from or written to the config file
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Reference store and metrics
	MetricsAddr string
	ListenAddr  string
	StoreDir    string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		BaseURL:           "http://localhost:8080",
		DeleteBackend:     DeleteNone,
		MaxFileSize:       constants.DefaultMaxFileSize,
		AllowedExtensions: strings.Split(constants.DefaultAllowedExtensions, ";"),
		MaxConcurrent:     constants.DefaultMaxConcurrent,
		PageSize:          constants.DefaultDirPageSize,
		ProxyMode:         "no-proxy",
		ListenAddr:        ":8080",
		StoreDir:          "intake-store",
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	// Return defaults if config doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "base_url":
			cfg.BaseURL = value
		case "delete_backend":
			cfg.DeleteBackend = strings.ToLower(value)
		case "delete_url":
			cfg.DeleteURL = value
		case "s3_bucket":
			cfg.S3Bucket = value
		case "s3_region":
			cfg.S3Region = value
		case "object_prefix":
			cfg.ObjectPrefix = value
		case "azure_container_url":
			cfg.AzureContainerURL = value
		case "multiple":
			cfg.Multiple = parseBool(value)
		case "max_file_size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cfg.MaxFileSize = v
			}
		case "allowed_extensions":
			cfg.AllowedExtensions = validation.ParseExtensions(value)
		case "max_concurrent":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.MaxConcurrent = v
			}
		case "include_hidden":
			cfg.IncludeHidden = parseBool(value)
		case "page_size":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.PageSize = v
			}
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "proxy_password":
			// Passwords come from INTAKE_PROXY_PASSWORD only
			if value != "" {
				log.Warn().Str("file", path).Msg("proxy_password in config file is ignored, use INTAKE_PROXY_PASSWORD")
			}
		case "no_proxy":
			cfg.NoProxy = value
		case "proxy_warmup":
			cfg.ProxyWarmup = parseBool(value)
		case "metrics_addr":
			cfg.MetricsAddr = value
		case "listen_addr":
			cfg.ListenAddr = value
		case "store_dir":
			cfg.StoreDir = value
		}
	}

	return cfg, nil
}

func parseBool(value string) bool {
	return strings.ToLower(value) == "true" || value == "1"
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// proxy_password is intentionally omitted
	records := [][]string{
		{"base_url", cfg.BaseURL},
		{"delete_backend", cfg.DeleteBackend},
		{"delete_url", cfg.DeleteURL},
		{"s3_bucket", cfg.S3Bucket},
		{"s3_region", cfg.S3Region},
		{"object_prefix", cfg.ObjectPrefix},
		{"azure_container_url", cfg.AzureContainerURL},
		{"multiple", strconv.FormatBool(cfg.Multiple)},
		{"max_file_size", strconv.FormatInt(cfg.MaxFileSize, 10)},
		{"allowed_extensions", strings.Join(cfg.AllowedExtensions, ";")},
		{"max_concurrent", strconv.Itoa(cfg.MaxConcurrent)},
		{"include_hidden", strconv.FormatBool(cfg.IncludeHidden)},
		{"page_size", strconv.Itoa(cfg.PageSize)},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"proxy_warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		{"metrics_addr", cfg.MetricsAddr},
		{"listen_addr", cfg.ListenAddr},
		{"store_dir", cfg.StoreDir},
	}

	for _, record := range records {
		// Only write non-empty values to keep file clean
		if record[1] != "" && record[1] != "0" && record[1] != "false" {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush config file: %w", err)
	}
	return nil
}

// MergeWithFlags merges config with command-line flags and environment variables
// Priority: flags > environment > config file > defaults
func (c *Config) MergeWithFlags(baseURL, deleteBackend, proxyMode, proxyHost string, proxyPort int) {
	if envURL := os.Getenv("INTAKE_BASE_URL"); envURL != "" {
		c.BaseURL = envURL
	}
	if envURL := os.Getenv("INTAKE_DELETE_URL"); envURL != "" {
		c.DeleteURL = envURL
	}
	if envPassword := os.Getenv("INTAKE_PROXY_PASSWORD"); envPassword != "" {
		c.ProxyPassword = envPassword
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}

	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if deleteBackend != "" {
		c.DeleteBackend = strings.ToLower(deleteBackend)
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if proxyHost != "" {
		c.ProxyHost = proxyHost
	}
	if proxyPort > 0 {
		c.ProxyPort = proxyPort
	}

	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http") {
		c.BaseURL = "https://" + c.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")
	proxyURL = strings.TrimRight(proxyURL, "/")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && c.ProxyMode == "no-proxy" {
		c.ProxyMode = "system"
	}
}

// DeleteEndpoint returns the URL of the HTTP deletion endpoint.
func (c *Config) DeleteEndpoint() string {
	if c.DeleteURL != "" {
		return c.DeleteURL
	}
	return strings.TrimRight(c.BaseURL, "/") + constants.DeletePath
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.MaxConcurrent < constants.MinMaxConcurrent || c.MaxConcurrent > constants.MaxMaxConcurrent {
		return fmt.Errorf("max_concurrent must be between %d and %d", constants.MinMaxConcurrent, constants.MaxMaxConcurrent)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size cannot be negative")
	}
	switch c.DeleteBackend {
	case DeleteNone, "", DeleteHTTP, DeleteBus:
	case DeleteS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for delete_backend=s3")
		}
	case DeleteAzure:
		if c.AzureContainerURL == "" {
			return fmt.Errorf("azure_container_url is required for delete_backend=azure")
		}
	default:
		return fmt.Errorf("unsupported delete_backend: %s", c.DeleteBackend)
	}
	return nil
}
