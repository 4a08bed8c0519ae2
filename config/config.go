package config

import (
	"github.com/jinzhu/configor"
)

// Config - Application configuration
type Config struct {
	Debug bool   `yaml:"debug" default:"false" env:"PAGEMIRROR_DEBUG"`
	Log   string `yaml:"log" default:"" env:"PAGEMIRROR_LOG"` // Log file path, stderr when empty

	Fetch struct {
		Timeout     int    `yaml:"timeout" default:"10" env:"FETCH_TIMEOUT"`                   // Timeout in seconds
		UserAgent   string `yaml:"user_agent" default:"" env:"FETCH_USER_AGENT"`               // Library default when empty
		MaxWorkers  int    `yaml:"max_workers" default:"8" env:"FETCH_MAX_WORKERS"`            // Concurrent resource downloads
		MaxBodySize int64  `yaml:"max_body_size" default:"52428800" env:"FETCH_MAX_BODY_SIZE"` // Bytes, 0 disables the limit
	} `yaml:"fetch"`

	Mirror struct {
		OutputDir string `yaml:"output_dir" default:"." env:"MIRROR_OUTPUT_DIR"`
		EntryFile string `yaml:"entry_file" default:"index.html" env:"MIRROR_ENTRY_FILE"`
	} `yaml:"mirror"`
}

// LoadConfig - Load configuration file. An empty path loads defaults and
// environment overrides only.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	var files []string
	if path != "" {
		files = append(files, path)
	}
	err := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, files...)
	return cfg, err
}
