// Package config handles loading, defaulting, and validation of the agent
// configuration file. Every section maps to a typed struct so the rest of
// the codebase gets strong typing without manual key lookups.
//
// TOML is the primary format. YAML and JSON (with comments) are accepted so
// existing deployments that ship an appsettings-style file keep working.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Fetcher methods.
const (
	FetchCommand = "command"
	FetchSession = "session"
)

// Presence detection methods.
const (
	DetectProcess = "process"
	DetectPort    = "port"
)

// Config is the top-level configuration, mirroring the file sections.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"   yaml:"logging"   json:"logging"`
	Server    ServerConfig    `toml:"server"    yaml:"server"    json:"server"`
	Network   NetworkConfig   `toml:"network"   yaml:"network"   json:"network"`
	Cache     CacheConfig     `toml:"cache"     yaml:"cache"     json:"cache"`
	Detection DetectionConfig `toml:"detection" yaml:"detection" json:"detection"`
	Fetcher   FetcherConfig   `toml:"fetcher"   yaml:"fetcher"   json:"fetcher"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  yaml:"level"  json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
	Flow   string `toml:"flow"   yaml:"flow"   json:"flow"`
	File   string `toml:"file"   yaml:"file"   json:"file"`
}

// ServerConfig controls the local status API. It never talks to the
// collector.
type ServerConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Bind    string `toml:"bind"    yaml:"bind"    json:"bind"`
}

// NetworkConfig locates the collector endpoint.
type NetworkConfig struct {
	ApiBaseAddress string `toml:"api_base_address" yaml:"api_base_address" json:"api_base_address"`
	ApiPort        int    `toml:"api_port"         yaml:"api_port"         json:"api_port"`
	ApiPath        string `toml:"api_path"         yaml:"api_path"         json:"api_path"`
	TimeoutMs      int    `toml:"timeout_ms"       yaml:"timeout_ms"       json:"timeout_ms"`
}

type CacheConfig struct {
	Path          string `toml:"path"            yaml:"path"            json:"path"`
	RetryPeriodMs int    `toml:"retry_period_ms" yaml:"retry_period_ms" json:"retry_period_ms"`
	MaxEntries    int    `toml:"max_entries"     yaml:"max_entries"     json:"max_entries"`
	MaxRetries    int    `toml:"max_retries"     yaml:"max_retries"     json:"max_retries"`
}

type DetectionConfig struct {
	Method            string `toml:"method"              yaml:"method"              json:"method"`
	ProcessName       string `toml:"process_name"        yaml:"process_name"        json:"process_name"`
	Address           string `toml:"address"             yaml:"address"             json:"address"`
	Port              int    `toml:"port"                yaml:"port"                json:"port"`
	DetectionPeriodMs int    `toml:"detection_period_ms" yaml:"detection_period_ms" json:"detection_period_ms"`
}

type FetcherConfig struct {
	Method       string        `toml:"method"          yaml:"method"          json:"method"`
	InfoFilePath string        `toml:"info_file_path"  yaml:"info_file_path"  json:"info_file_path"`
	MaxAttempts  int           `toml:"max_attempts"    yaml:"max_attempts"    json:"max_attempts"`
	WaitPeriodMs int           `toml:"wait_period_ms"  yaml:"wait_period_ms"  json:"wait_period_ms"`
	Command      CommandConfig `toml:"command"         yaml:"command"         json:"command"`
	Session      SessionConfig `toml:"session"         yaml:"session"         json:"session"`
}

// CommandConfig drives the batch-command fetcher: one run of ExecutablePath
// per Arguments entry.
type CommandConfig struct {
	ExecutablePath  string   `toml:"executable_path"   yaml:"executable_path"   json:"executable_path"`
	Arguments       []string `toml:"arguments"         yaml:"arguments"         json:"arguments"`
	SuccessExitCode int      `toml:"success_exit_code" yaml:"success_exit_code" json:"success_exit_code"`
	WaitTimeoutMs   int      `toml:"wait_timeout_ms"   yaml:"wait_timeout_ms"   json:"wait_timeout_ms"`
}

// SessionConfig drives the native-session fetcher through the vendor
// remote API library.
type SessionConfig struct {
	LibraryPath          string   `toml:"library_path"            yaml:"library_path"            json:"library_path"`
	Address              string   `toml:"address"                 yaml:"address"                 json:"address"`
	Port                 string   `toml:"port"                    yaml:"port"                    json:"port"`
	PacketLength         string   `toml:"packet_length"           yaml:"packet_length"           json:"packet_length"`
	Commands             []string `toml:"commands"                yaml:"commands"                json:"commands"`
	UsePracticeScript    bool     `toml:"use_practice_script"     yaml:"use_practice_script"     json:"use_practice_script"`
	PracticeScriptPath   string   `toml:"practice_script_path"    yaml:"practice_script_path"    json:"practice_script_path"`
	PracticePollPeriodMs int      `toml:"practice_poll_period_ms" yaml:"practice_poll_period_ms" json:"practice_poll_period_ms"`
	PracticeTimeoutMs    int      `toml:"practice_timeout_ms"     yaml:"practice_timeout_ms"     json:"practice_timeout_ms"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the file omits a field.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Flow:   "console",
		},
		Server: ServerConfig{
			Enabled: true,
			Bind:    "127.0.0.1:8089",
		},
		Network: NetworkConfig{
			ApiBaseAddress: "http://127.0.0.1",
			ApiPort:        8000,
			ApiPath:        "/api/v1/ld-logs",
			TimeoutMs:      10000,
		},
		Cache: CacheConfig{
			Path:          "ldsentinel-cache.db",
			RetryPeriodMs: 30000,
			MaxEntries:    1000,
			MaxRetries:    20,
		},
		Detection: DetectionConfig{
			Method:            DetectProcess,
			ProcessName:       "t32mtc",
			Address:           "127.0.0.1",
			Port:              20000,
			DetectionPeriodMs: 5000,
		},
		Fetcher: FetcherConfig{
			Method:       FetchCommand,
			InfoFilePath: "output.txt",
			MaxAttempts:  15,
			WaitPeriodMs: 4000,
			Command: CommandConfig{
				ExecutablePath: "t32rem",
				Arguments: []string{
					"localhost port=20000 VERSION.HARDWARE",
				},
				SuccessExitCode: 0,
				WaitTimeoutMs:   30000,
			},
			Session: SessionConfig{
				LibraryPath:          defaultLibraryPath,
				Address:              "localhost",
				Port:                 "20000",
				PacketLength:         "1024",
				PracticeScriptPath:   "ldsentinel.cmm",
				PracticePollPeriodMs: 500,
				PracticeTimeoutMs:    60000,
			},
		},
	}
}

// Load reads the file at path, layers it on top of the defaults, and
// validates the result. The decoder is picked by file extension; anything
// unrecognized is parsed as TOML.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := decode(path, b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(b), cfg)
	default:
		return toml.Unmarshal(b, cfg)
	}
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Flow {
	case "console":
	case "file":
		if cfg.Logging.File == "" {
			return errors.New("logging.file must be set when logging.flow is \"file\"")
		}
	default:
		return fmt.Errorf("logging.flow %q must be console or file", cfg.Logging.Flow)
	}
	if cfg.Server.Enabled && cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty when the server is enabled")
	}

	if cfg.Network.ApiBaseAddress == "" {
		return errors.New("network.api_base_address must not be empty")
	}
	if cfg.Network.ApiPort < 1 || cfg.Network.ApiPort > 65535 {
		return errors.New("network.api_port must be between 1 and 65535")
	}
	if cfg.Network.TimeoutMs < 1 {
		return errors.New("network.timeout_ms must be >= 1")
	}

	if cfg.Cache.Path == "" {
		return errors.New("cache.path must not be empty")
	}
	if cfg.Cache.RetryPeriodMs < 1 {
		return errors.New("cache.retry_period_ms must be >= 1")
	}
	if cfg.Cache.MaxEntries < 1 {
		return errors.New("cache.max_entries must be >= 1")
	}
	if cfg.Cache.MaxRetries < 1 {
		return errors.New("cache.max_retries must be >= 1")
	}

	switch cfg.Detection.Method {
	case DetectProcess:
		if cfg.Detection.ProcessName == "" {
			return errors.New("detection.process_name must not be empty")
		}
	case DetectPort:
		if cfg.Detection.Port < 1 || cfg.Detection.Port > 65535 {
			return errors.New("detection.port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("detection.method %q must be process or port", cfg.Detection.Method)
	}
	if cfg.Detection.DetectionPeriodMs < 1 {
		return errors.New("detection.detection_period_ms must be >= 1")
	}

	f := cfg.Fetcher
	if f.InfoFilePath == "" {
		return errors.New("fetcher.info_file_path must not be empty")
	}
	if f.MaxAttempts < 1 {
		return errors.New("fetcher.max_attempts must be >= 1")
	}
	if f.WaitPeriodMs < 0 {
		return errors.New("fetcher.wait_period_ms must be >= 0")
	}
	switch f.Method {
	case FetchCommand:
		if f.Command.ExecutablePath == "" {
			return errors.New("fetcher.command.executable_path must not be empty")
		}
		if f.Command.WaitTimeoutMs < 1 {
			return errors.New("fetcher.command.wait_timeout_ms must be >= 1")
		}
	case FetchSession:
		s := f.Session
		if s.LibraryPath == "" {
			return errors.New("fetcher.session.library_path must not be empty")
		}
		if s.Address == "" || s.Port == "" || s.PacketLength == "" {
			return errors.New("fetcher.session address, port and packet_length are required")
		}
		if len(s.Commands) == 0 {
			return errors.New("fetcher.session.commands must not be empty")
		}
		if s.UsePracticeScript && s.PracticeScriptPath == "" {
			return errors.New("fetcher.session.practice_script_path must be set when use_practice_script is true")
		}
		if s.PracticePollPeriodMs < 1 {
			return errors.New("fetcher.session.practice_poll_period_ms must be >= 1")
		}
		if s.PracticeTimeoutMs < 0 {
			return errors.New("fetcher.session.practice_timeout_ms must be >= 0")
		}
	default:
		return fmt.Errorf("fetcher.method %q must be command or session", f.Method)
	}
	return nil
}

// CollectorURL joins the network section into the POST target.
func (n NetworkConfig) CollectorURL() string {
	return fmt.Sprintf("%s:%d%s", strings.TrimRight(n.ApiBaseAddress, "/"), n.ApiPort, n.ApiPath)
}

func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

func (c CacheConfig) RetryPeriod() time.Duration {
	return time.Duration(c.RetryPeriodMs) * time.Millisecond
}

func (d DetectionConfig) Period() time.Duration {
	return time.Duration(d.DetectionPeriodMs) * time.Millisecond
}

func (f FetcherConfig) WaitPeriod() time.Duration {
	return time.Duration(f.WaitPeriodMs) * time.Millisecond
}
