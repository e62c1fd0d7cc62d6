// Package config loads rsctool settings.
//
// Settings come from four layers, later layers winning:
//
//  1. built-in defaults (localhost, box 0, AC_1 then AC_2, 1ms delay)
//  2. a config file, YAML (.yaml/.yml) or JSON with comments (.json/.jsonc)
//  3. environment variables (RSCTOOL_*), optionally seeded from a .env file
//  4. command line flags (applied by package cli)
//
// JSONC is supported via github.com/tidwall/jsonc, which strips comments
// and trailing commas before the standard encoding/json parser runs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/relay"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// Environment variable names.
const (
	EnvHost     = "RSCTOOL_HOST"
	EnvPort     = "RSCTOOL_PORT"
	EnvBox      = "RSCTOOL_BOX"
	EnvDelay    = "RSCTOOL_DELAY"
	EnvTimeout  = "RSCTOOL_TIMEOUT"
	EnvRelays   = "RSCTOOL_RELAYS"
	EnvLogLevel = "RSCTOOL_LOG_LEVEL"
)

// appDir is the directory name under the user config directory.
const appDir = "rsctool"

// candidateNames are tried in order when no config path is given.
var candidateNames = []string{"config.yaml", "config.yml", "config.jsonc", "config.json"}

// File is the on-disk configuration. Every field is optional.
//
// Example (YAML):
//
//	host: lab-pc-07
//	port: 7380
//	box: 0
//	delay: 1s
//	timeout: 10s
//	relays: [AC_1, AC_2]
//	logLevel: info
type File struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	Box      *int     `json:"box" yaml:"box"`
	Delay    string   `json:"delay" yaml:"delay"`
	Timeout  string   `json:"timeout" yaml:"timeout"`
	Relays   []string `json:"relays" yaml:"relays"`
	LogLevel string   `json:"logLevel" yaml:"logLevel"`

	// Path is where the file was read from; empty when no file was found.
	Path string `json:"-" yaml:"-"`
}

// Settings are the resolved values used by the commands.
type Settings struct {
	Host     string
	Port     int
	Box      int
	Delay    time.Duration
	Timeout  time.Duration
	Relays   []model.SignalID
	LogLevel string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Host:     rsc2.DefaultHost,
		Port:     rsc2.DefaultPort,
		Box:      0,
		Delay:    relay.DefaultDelay,
		Timeout:  rsc2.DefaultCallTimeout,
		Relays:   []model.SignalID{model.SignalAC1, model.SignalAC2},
		LogLevel: "warning",
	}
}

// DefaultDir returns the directory searched for a config file.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

// Load reads the config file at path. With an empty path the default
// directory is searched and a missing file yields an empty File.
// An explicitly named file that does not exist is a usage error.
func Load(path string) (*File, error) {
	if path != "" {
		return loadFile(path)
	}

	dir, err := DefaultDir()
	if err != nil {
		// No home directory (e.g. a service account): run on defaults.
		return &File{}, nil
	}
	for _, name := range candidateNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return loadFile(candidate)
		}
	}
	return &File{}, nil
}

func loadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitUsage,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitUsage,
			fmt.Sprintf("invalid config file %s", path), err)
	}
	f.Path = path
	return f, nil
}

// Parse decodes config data. ext selects the format (".yaml", ".yml",
// ".json", ".jsonc"); anything else is tried as YAML, which also accepts
// plain JSON.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	return &f, nil
}

// LoadDotEnv loads environment variables from path. Missing files are
// ignored; variables already set in the environment are not overridden.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Resolve layers the file and the environment over the defaults. lookup is
// usually os.LookupEnv.
func Resolve(f *File, lookup func(string) (string, bool)) (Settings, error) {
	s := Defaults()
	if f == nil {
		f = &File{}
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	src := "config file"
	if f.Path != "" {
		src = f.Path
	}
	if err := s.apply(src, fileValues(f)); err != nil {
		return Settings{}, err
	}
	if err := s.apply("environment", envValues(lookup)); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// values holds raw, possibly unset, setting strings from one layer.
type values struct {
	host, port, box, delay, timeout, relays, logLevel string
}

func fileValues(f *File) values {
	v := values{
		host:     f.Host,
		delay:    f.Delay,
		timeout:  f.Timeout,
		relays:   strings.Join(f.Relays, ","),
		logLevel: f.LogLevel,
	}
	if f.Port != 0 {
		v.port = strconv.Itoa(f.Port)
	}
	if f.Box != nil {
		v.box = strconv.Itoa(*f.Box)
	}
	return v
}

func envValues(lookup func(string) (string, bool)) values {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	return values{
		host:     get(EnvHost),
		port:     get(EnvPort),
		box:      get(EnvBox),
		delay:    get(EnvDelay),
		timeout:  get(EnvTimeout),
		relays:   get(EnvRelays),
		logLevel: get(EnvLogLevel),
	}
}

func (s *Settings) apply(src string, v values) error {
	invalid := func(field string, err error) error {
		return model.WrapCLIError(model.ExitUsage, fmt.Sprintf("invalid %s in %s", field, src), err)
	}

	if v.host != "" {
		s.Host = v.host
	}
	if v.port != "" {
		p, err := ParsePort(v.port)
		if err != nil {
			return invalid("port", err)
		}
		s.Port = p
	}
	if v.box != "" {
		b, err := strconv.Atoi(v.box)
		if err != nil || b < 0 {
			return invalid("box", fmt.Errorf("box index must be a non-negative integer, got %q", v.box))
		}
		s.Box = b
	}
	if v.delay != "" {
		d, err := ParseDuration(v.delay)
		if err != nil {
			return invalid("delay", err)
		}
		s.Delay = d
	}
	if v.timeout != "" {
		d, err := ParseDuration(v.timeout)
		if err != nil {
			return invalid("timeout", err)
		}
		s.Timeout = d
	}
	if v.relays != "" {
		ids, err := ParseRelays(v.relays)
		if err != nil {
			return invalid("relays", err)
		}
		s.Relays = ids
	}
	if v.logLevel != "" {
		s.LogLevel = v.logLevel
	}
	return nil
}

// ParsePort parses a TCP port number.
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("port must be between 1 and 65535, got %q", s)
	}
	return p, nil
}

// ParseDuration accepts Go duration syntax ("1s", "250ms") or a bare
// number of milliseconds ("250").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("duration must not be negative, got %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %q", s)
	}
	return d, nil
}

// ParseRelays parses a comma separated list of output signals, e.g.
// "AC_1,AC_2". Duplicates and input signals are rejected.
func ParseRelays(s string) ([]model.SignalID, error) {
	var ids []model.SignalID
	seen := make(map[model.SignalID]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := model.ParseSignalID(part)
		if err != nil {
			return nil, err
		}
		if !id.IsOutput() {
			return nil, fmt.Errorf("signal %s is an input and cannot be used as a relay", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("signal %s listed twice", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one relay signal is required")
	}
	return ids, nil
}
