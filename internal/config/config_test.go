package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tile-compressor-go/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, tile.Size{Width: 10, Height: 10}, cfg.CompressSize())
	assert.Equal(t, 2000, cfg.Compress.Expected)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".bmp"}, cfg.Compress.SupportedExtensions)
	assert.Equal(t, tile.Size{Width: 600, Height: 480}, cfg.ResizeSize())
	assert.Equal(t, tile.Size{Width: 400, Height: 400}, cfg.FetchSize())
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2000, cfg.Fetch.Count)
	assert.Equal(t, "input", cfg.Server.OutputRoot)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad compress size", mutate: func(c *Config) { c.Compress.Size = "10" }, wantErr: true},
		{name: "zero resize size", mutate: func(c *Config) { c.Resize.Size = "0x480" }, wantErr: true},
		{name: "bad fetch size", mutate: func(c *Config) { c.Fetch.Size = "big" }, wantErr: true},
		{name: "negative expected", mutate: func(c *Config) { c.Compress.Expected = -1 }, wantErr: true},
		{name: "zero expected", mutate: func(c *Config) { c.Compress.Expected = 0 }},
		{name: "negative count", mutate: func(c *Config) { c.Fetch.Count = -5 }, wantErr: true},
		{name: "quality low", mutate: func(c *Config) { c.Compress.Quality = 0 }, wantErr: true},
		{name: "quality high", mutate: func(c *Config) { c.Fetch.Quality = 101 }, wantErr: true},
		{name: "unknown filter", mutate: func(c *Config) { c.Compress.Filter = "sharp" }, wantErr: true},
		{name: "empty filter", mutate: func(c *Config) { c.Resize.Filter = "" }},
		{name: "no url template", mutate: func(c *Config) { c.Fetch.URLTemplate = "" }, wantErr: true},
		{name: "no output root", mutate: func(c *Config) { c.Server.OutputRoot = " " }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "no extensions", mutate: func(c *Config) { c.Compress.SupportedExtensions = []string{" "} }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCompress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compress.InputDir = ""
	assert.Error(t, cfg.ValidateCompress())

	cfg = DefaultConfig()
	cfg.Compress.OutputDir = ""
	assert.Error(t, cfg.ValidateCompress())

	assert.NoError(t, DefaultConfig().ValidateCompress())
}

func TestValidateNormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compress.SupportedExtensions = []string{"JPG", ".PNG", "bmp"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{".jpg", ".png", ".bmp"}, cfg.Compress.SupportedExtensions)
	exts := tile.NewExtensions(cfg.Compress.SupportedExtensions)
	assert.True(t, exts.Match("a.PNG"))
	assert.False(t, exts.Match("a.gif"))
}

func TestValidateDefaultsTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.Timeout = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
compress:
  input_dir: tiles/in
  output_dir: tiles/out
  size: 4x4
  expected: 2
  supported_extensions: [jpg, PNG]
fetch:
  count: 5
  timeout: 3s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tiles/in", cfg.Compress.InputDir)
	assert.Equal(t, "tiles/out", cfg.Compress.OutputDir)
	assert.Equal(t, tile.Size{Width: 4, Height: 4}, cfg.CompressSize())
	assert.Equal(t, 2, cfg.Compress.Expected)
	assert.Equal(t, []string{".jpg", ".png"}, cfg.Compress.SupportedExtensions)
	assert.Equal(t, 5, cfg.Fetch.Count)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep defaults
	assert.Equal(t, 75, cfg.Compress.Quality)
	assert.Equal(t, "600x480", cfg.Resize.Size)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compress:\n  expected: 10\n"), 0644))
	t.Setenv("TILE_COMPRESSOR_COMPRESS_EXPECTED", "42")
	t.Setenv("TILE_COMPRESSOR_SERVER_PORT", "9090")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Compress.Expected)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compress:\n  size: huge\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
