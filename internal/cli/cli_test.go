package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positional recipe and defaults", func(t *testing.T) {
		cfg, exit, err := Parse([]string{"recipe.json"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.False(t, exit)
		assert.Equal(t, "recipe.json", cfg.RecipePath)
		assert.Equal(t, 1, cfg.Iterations)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "/", cfg.ReportNamespace)
	})

	t.Run("all flags", func(t *testing.T) {
		cfg, _, err := Parse([]string{
			"--recipe", "r.hcl", "--profile", "p.json", "--artifacts", "/art",
			"--library-root", "/lib", "--runlist-threshold", "4", "--iterations", "3",
			"--report-url", "http://localhost:3000", "--report-namespace", "/npu",
			"--log-level", "DEBUG", "--log-format", "text", "--healthcheck-port", "8080",
		}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "r.hcl", cfg.RecipePath)
		assert.Equal(t, "p.json", cfg.ProfilePath)
		assert.Equal(t, "/art", cfg.ArtifactsRoot)
		assert.Equal(t, "/lib", cfg.LibraryRoot)
		assert.Equal(t, 4, cfg.RunlistThreshold)
		assert.Equal(t, 3, cfg.Iterations)
		assert.Equal(t, "http://localhost:3000", cfg.ReportURL)
		assert.Equal(t, "/npu", cfg.ReportNamespace)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, 8080, cfg.HealthcheckPort)
	})

	t.Run("shorthand wins over positional", func(t *testing.T) {
		cfg, _, err := Parse([]string{"-r", "a.json"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "a.json", cfg.RecipePath)
	})

	t.Run("no recipe prints usage", func(t *testing.T) {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(nil, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown flag", args: []string{"--nope"}, want: "flag provided but not defined"},
		{name: "log format", args: []string{"--log-format", "xml", "r.json"}, want: "invalid log-format"},
		{name: "log level", args: []string{"--log-level", "trace", "r.json"}, want: "invalid log-level"},
		{name: "iterations", args: []string{"--iterations", "-2", "r.json"}, want: "Iterations must be positive"},
		{name: "threshold", args: []string{"--runlist-threshold", "-1", "r.json"}, want: "RunlistThreshold"},
		{name: "extra args", args: []string{"a.json", "b.json"}, want: "unexpected arguments: b.json"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
