package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration, layered from defaults, a
// TOML file and FEEDSYNC_ environment variables, in that order.
type Config struct {
	General struct {
		Origin   string `koanf:"origin"`
		Username string `koanf:"username"`
		PageSize int    `koanf:"page_size"`
		LogLevel string `koanf:"log_level"`
	} `koanf:"general"`

	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	// Origins maps an origin name to its connection settings (base_url,
	// token, rate_per_min).
	Origins map[string]map[string]interface{} `koanf:"origins"`

	Sync struct {
		Schedule  string   `koanf:"schedule"`
		Timelines []string `koanf:"timelines"`
	} `koanf:"sync"`
}

// LoadConfig loads configuration from configPath, or from the default
// locations when the path is empty.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"general.origin":    "twitter",
		"general.page_size": 50,
		"general.log_level": "info",
		"server.port":       8080,
		"sync.schedule":     "*/15 * * * *",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./feedsync.toml", "$HOME/.feedsync.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("FEEDSYNC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FEEDSYNC_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# feedsync configuration

[general]
origin = "twitter"
username = "your-username"
page_size = 50
log_level = "info"

[server]
port = 8080

[database]
url = "postgres://localhost:5432/feedsync?sslmode=disable"

[origins.twitter]
base_url = "https://api.twitter.com/1.1"
token = "your-bearer-token"
rate_per_min = 60

[sync]
schedule = "*/15 * * * *"
timelines = ["home", "mentions", "direct"]
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks that the parts every run needs are present.
func Validate(config *Config) error {
	if config.General.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if config.General.Username == "" {
		return fmt.Errorf("username is required")
	}

	originConfig, ok := config.Origins[config.General.Origin]
	if !ok {
		return fmt.Errorf("configuration for origin %s not found", config.General.Origin)
	}
	if _, ok := originConfig["base_url"]; !ok {
		return fmt.Errorf("origin %s base_url is required", config.General.Origin)
	}

	return nil
}

// OriginString reads a string setting of the selected origin, "" when
// unset.
func (c *Config) OriginString(key string) string {
	settings, ok := c.Origins[c.General.Origin]
	if !ok {
		return ""
	}
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}

// OriginInt reads a numeric setting of the selected origin, 0 when
// unset. TOML numbers arrive as int64, env overrides as strings.
func (c *Config) OriginInt(key string) int {
	settings, ok := c.Origins[c.General.Origin]
	if !ok {
		return 0
	}
	switch v := settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
