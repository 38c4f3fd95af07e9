package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridien-distribution/catalog-cli/internal/fetcher"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Odoo      OdooConfig      `yaml:"odoo" mapstructure:"odoo"`
	FTP       fetcher.Config  `yaml:"ftp" mapstructure:"ftp"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Images    ImagesConfig    `yaml:"images" mapstructure:"images"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for field extraction.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	ChunkChars        int    `yaml:"chunk_chars" mapstructure:"chunk_chars"`
	OverlapChars      int    `yaml:"overlap_chars" mapstructure:"overlap_chars"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// OdooConfig holds Odoo JSON-RPC credentials.
type OdooConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Database string `yaml:"database" mapstructure:"database"`
	Username string `yaml:"username" mapstructure:"username"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	Limit    int    `yaml:"limit" mapstructure:"limit"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// ImagesConfig configures image variant processing.
type ImagesConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// MatcherConfig tunes ERP candidate matching.
type MatcherConfig struct {
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results"`
	HighThreshold     float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
	MinPartialCodeLen int     `yaml:"min_partial_code_len" mapstructure:"min_partial_code_len"`
}

// MergeConfig configures field merging.
type MergeConfig struct {
	DefaultConfidence float64 `yaml:"default_confidence" mapstructure:"default_confidence"`
	PolicyFile        string  `yaml:"policy_file" mapstructure:"policy_file"`
}

// PipelineConfig configures document processing.
type PipelineConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ExportConfig configures XLSX export.
type ExportConfig struct {
	Output string `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required by a command mode are set.
// Mode is the top-level command about to run: extract, fetch, sync,
// match, or serve.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "extract":
		requireStore()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	case "fetch":
		if c.FTP.Host == "" {
			missing = append(missing, "ftp.host is required")
		}
	case "sync", "match":
		requireStore()
		if c.Odoo.URL == "" {
			missing = append(missing, "odoo.url is required")
		}
		if c.Odoo.Database == "" {
			missing = append(missing, "odoo.database is required")
		}
		if c.Odoo.APIKey == "" {
			missing = append(missing, "odoo.api_key is required")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Matcher.MediumThreshold > c.Matcher.HighThreshold {
		missing = append(missing, "matcher.medium_threshold must not exceed matcher.high_threshold")
	}
	if c.Merge.DefaultConfidence < 0 || c.Merge.DefaultConfidence > 1 {
		missing = append(missing, "merge.default_confidence must be in [0, 1]")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.chunk_chars", 12000)
	v.SetDefault("anthropic.overlap_chars", 800)
	v.SetDefault("anthropic.requests_per_minute", 20)
	v.SetDefault("odoo.limit", 5000)
	v.SetDefault("ftp.timeout", "30s")
	v.SetDefault("ftp.remote_dir", "/")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("images.workers", 4)
	v.SetDefault("matcher.max_results", 10)
	v.SetDefault("matcher.high_threshold", 0.90)
	v.SetDefault("matcher.medium_threshold", 0.60)
	v.SetDefault("matcher.min_partial_code_len", 3)
	v.SetDefault("merge.default_confidence", 0.5)
	v.SetDefault("pipeline.data_dir", "data")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("export.output", "catalog.xlsx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
