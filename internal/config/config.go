package config

import (
	"fmt"
	"strings"
	"time"

	"tile-compressor-go/internal/tile"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compress CompressConfig `mapstructure:"compress"`
	Resize   ResizeConfig   `mapstructure:"resize"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CompressConfig contains tile compression settings
type CompressConfig struct {
	InputDir            string   `mapstructure:"input_dir"`
	OutputDir           string   `mapstructure:"output_dir"`
	Size                string   `mapstructure:"size"`
	Expected            int      `mapstructure:"expected"`
	Quality             int      `mapstructure:"quality"`
	Filter              string   `mapstructure:"filter"`
	SupportedExtensions []string `mapstructure:"supported_extensions"`
}

// ResizeConfig contains single image resize settings
type ResizeConfig struct {
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
	Size    string `mapstructure:"size"`
	Filter  string `mapstructure:"filter"`
	Quality int    `mapstructure:"quality"`
}

// FetchConfig contains tile download settings
type FetchConfig struct {
	OutputDir    string        `mapstructure:"output_dir"`
	Count        int           `mapstructure:"count"`
	URLTemplate  string        `mapstructure:"url_template"`
	Size         string        `mapstructure:"size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Quality      int           `mapstructure:"quality"`
	ShowProgress bool          `mapstructure:"show_progress"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	OutputRoot string `mapstructure:"output_root"` // API output and tile listing dirs must live under it
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compress: CompressConfig{
			InputDir:            "input/tile_set",
			OutputDir:           "input/compressed_tile",
			Size:                "10x10",
			Expected:            2000,
			Quality:             tile.DefaultQuality,
			Filter:              tile.DefaultFilter,
			SupportedExtensions: append([]string(nil), tile.DefaultExtensions...),
		},
		Resize: ResizeConfig{
			Input:   "input/test.jpg",
			Output:  "input/test_resized.jpg",
			Size:    "600x480",
			Filter:  tile.DefaultFilter,
			Quality: tile.DefaultQuality,
		},
		Fetch: FetchConfig{
			OutputDir:   "input/tile_set",
			Count:       2000,
			URLTemplate: "https://picsum.photos/seed/{seed}/{width}/{height}",
			Size:        "400x400",
			Timeout:     10 * time.Second,
			Quality:     tile.DefaultQuality,
		},
		Server: ServerConfig{
			Port:       8080,
			OutputRoot: "input",
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "tile-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tile-compressor")
		v.AddConfigPath("/etc/tile-compressor")
	}

	// Enable environment variable support
	v.SetEnvPrefix("TILE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, DefaultConfig())

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal config; defaults come from viper so slices are not merged
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindDefaults registers every key with viper so AutomaticEnv can override
// keys that are absent from the config file.
func bindDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compress.input_dir", c.Compress.InputDir)
	v.SetDefault("compress.output_dir", c.Compress.OutputDir)
	v.SetDefault("compress.size", c.Compress.Size)
	v.SetDefault("compress.expected", c.Compress.Expected)
	v.SetDefault("compress.quality", c.Compress.Quality)
	v.SetDefault("compress.filter", c.Compress.Filter)
	v.SetDefault("compress.supported_extensions", c.Compress.SupportedExtensions)

	v.SetDefault("resize.input", c.Resize.Input)
	v.SetDefault("resize.output", c.Resize.Output)
	v.SetDefault("resize.size", c.Resize.Size)
	v.SetDefault("resize.filter", c.Resize.Filter)
	v.SetDefault("resize.quality", c.Resize.Quality)

	v.SetDefault("fetch.output_dir", c.Fetch.OutputDir)
	v.SetDefault("fetch.count", c.Fetch.Count)
	v.SetDefault("fetch.url_template", c.Fetch.URLTemplate)
	v.SetDefault("fetch.size", c.Fetch.Size)
	v.SetDefault("fetch.timeout", c.Fetch.Timeout)
	v.SetDefault("fetch.quality", c.Fetch.Quality)
	v.SetDefault("fetch.show_progress", c.Fetch.ShowProgress)

	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.output_root", c.Server.OutputRoot)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := tile.ParseSize(c.Compress.Size); err != nil {
		return fmt.Errorf("compress.size: %w", err)
	}
	if _, err := tile.ParseSize(c.Resize.Size); err != nil {
		return fmt.Errorf("resize.size: %w", err)
	}
	if _, err := tile.ParseSize(c.Fetch.Size); err != nil {
		return fmt.Errorf("fetch.size: %w", err)
	}

	if c.Compress.Expected < 0 {
		return fmt.Errorf("compress.expected must not be negative: %d", c.Compress.Expected)
	}
	if c.Fetch.Count < 0 {
		return fmt.Errorf("fetch.count must not be negative: %d", c.Fetch.Count)
	}

	for name, q := range map[string]int{
		"compress.quality": c.Compress.Quality,
		"resize.quality":   c.Resize.Quality,
		"fetch.quality":    c.Fetch.Quality,
	} {
		if q < 1 || q > 100 {
			return fmt.Errorf("%s must be between 1 and 100: %d", name, q)
		}
	}

	if _, err := tile.ParseFilter(c.Compress.Filter); err != nil {
		return fmt.Errorf("compress.filter: %w", err)
	}
	if _, err := tile.ParseFilter(c.Resize.Filter); err != nil {
		return fmt.Errorf("resize.filter: %w", err)
	}

	if c.Fetch.URLTemplate == "" {
		return fmt.Errorf("fetch.url_template is required")
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Second
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.OutputRoot) == "" {
		return fmt.Errorf("server.output_root is required")
	}

	// Validate extensions format
	c.Compress.SupportedExtensions = tile.NormalizeExtensions(c.Compress.SupportedExtensions)
	if len(c.Compress.SupportedExtensions) == 0 {
		return fmt.Errorf("compress.supported_extensions must not be empty")
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// ValidateCompress checks the settings a compression run cannot do without.
func (c *Config) ValidateCompress() error {
	if c.Compress.InputDir == "" {
		return fmt.Errorf("compress.input_dir is required")
	}
	if c.Compress.OutputDir == "" {
		return fmt.Errorf("compress.output_dir is required")
	}
	return c.Validate()
}

// CompressSize returns the parsed tile size.
func (c *Config) CompressSize() tile.Size {
	s, _ := tile.ParseSize(c.Compress.Size)
	return s
}

// ResizeSize returns the parsed single image size.
func (c *Config) ResizeSize() tile.Size {
	s, _ := tile.ParseSize(c.Resize.Size)
	return s
}

// FetchSize returns the parsed download size.
func (c *Config) FetchSize() tile.Size {
	s, _ := tile.ParseSize(c.Fetch.Size)
	return s
}
