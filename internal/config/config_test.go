package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// writeTestFile writes content to name inside a fresh temp directory and
// returns the full path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// envMap turns a map into a lookup function for Resolve.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// TestLoad_YAML verifies a full YAML config file is decoded.
func TestLoad_YAML(t *testing.T) {
	path := writeTestFile(t, "config.yaml", `
host: lab-pc-07
port: 9000
box: 1
delay: 250ms
timeout: 3s
relays: [AC_2, AC_1]
logLevel: debug
`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)

	s, err := Resolve(f, nil)
	require.NoError(t, err)
	assert.Equal(t, "lab-pc-07", s.Host)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, 1, s.Box)
	assert.Equal(t, 250*time.Millisecond, s.Delay)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, []model.SignalID{model.SignalAC2, model.SignalAC1}, s.Relays)
	assert.Equal(t, "debug", s.LogLevel)
}

// TestLoad_JSONC verifies comments and trailing commas are accepted.
func TestLoad_JSONC(t *testing.T) {
	path := writeTestFile(t, "config.jsonc", `{
  // the bench controller
  "host": "10.1.2.3",
  "box": 0,
  /* slow relays */
  "delay": "2s",
}`)

	f, err := Load(path)
	require.NoError(t, err)

	s, err := Resolve(f, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", s.Host)
	assert.Equal(t, 0, s.Box)
	assert.Equal(t, 2*time.Second, s.Delay)
}

// TestLoad_MissingExplicitFile verifies a named but absent file is a
// usage error.
func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitUsage, cliErr.Code)
}

// TestLoad_InvalidYAML verifies parse errors are reported as usage errors.
func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "host: [unclosed\n")
	_, err := Load(path)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitUsage, cliErr.Code)
}

// TestResolve_Defaults verifies the built-in settings.
func TestResolve_Defaults(t *testing.T) {
	s, err := Resolve(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, time.Millisecond, s.Delay)
	assert.Equal(t, []model.SignalID{model.SignalAC1, model.SignalAC2}, s.Relays)
}

// TestResolve_EnvOverridesFile checks layer precedence.
func TestResolve_EnvOverridesFile(t *testing.T) {
	box := 2
	f := &File{Host: "from-file", Box: &box, Delay: "5s"}

	s, err := Resolve(f, envMap(map[string]string{
		EnvHost:   "from-env",
		EnvDelay:  "100",
		EnvRelays: "OUT_AUX_A",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", s.Host)
	assert.Equal(t, 2, s.Box, "file value kept when env is unset")
	assert.Equal(t, 100*time.Millisecond, s.Delay)
	assert.Equal(t, []model.SignalID{model.SignalOutAuxA}, s.Relays)
}

// TestResolve_InvalidValues checks each field's validation.
func TestResolve_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{EnvPort: "70000"}},
		{"negative box", map[string]string{EnvBox: "-1"}},
		{"bad delay", map[string]string{EnvDelay: "soon"}},
		{"negative timeout", map[string]string{EnvTimeout: "-3s"}},
		{"input relay", map[string]string{EnvRelays: "AC_1,LED_PWR"}},
		{"duplicate relay", map[string]string{EnvRelays: "AC_1,ac_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(nil, envMap(tt.env))
			require.Error(t, err)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitUsage, cliErr.Code)
			assert.Contains(t, cliErr.Message, "environment")
		})
	}
}

// TestLoadDotEnv verifies .env files seed unset variables and that a
// missing file is not an error.
func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := writeTestFile(t, ".env", "RSCTOOL_TEST_DOTENV=bench-3\n")
	t.Cleanup(func() { _ = os.Unsetenv("RSCTOOL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "bench-3", os.Getenv("RSCTOOL_TEST_DOTENV"))
}

// TestParseRelays covers the list syntax.
func TestParseRelays(t *testing.T) {
	ids, err := ParseRelays(" AC_1 , ac_2 ,")
	require.NoError(t, err)
	assert.Equal(t, []model.SignalID{model.SignalAC1, model.SignalAC2}, ids)

	_, err = ParseRelays(",")
	assert.Error(t, err)
}
