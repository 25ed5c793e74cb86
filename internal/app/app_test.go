package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/npurunner/internal/failure"
	"github.com/vk/npurunner/internal/testutil"
)

const fillRecipe = `{
  "header": {"xclbin": "design.xclbin"},
  "resources": {
    "buffers": {"ofm": {"type": "output", "size": 4}},
    "kernels": [{"name": "fill"}]
  },
  "execution": {
    "runs": [
      {"name": "fill", "arguments": [{"name": "ofm", "argidx": 0}],
       "constants": {"value": {"argidx": 1, "type": "int", "value": 7}}}
    ]
  }
}`

// recordingSink keeps every published report.
type recordingSink struct {
	mu      sync.Mutex
	reports []string
	closed  bool
}

func (s *recordingSink) Publish(_ context.Context, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func setupApp(t *testing.T, cfg Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()
	config, err := NewConfig(cfg)
	require.NoError(t, err)
	config.LogLevel = "debug"
	config.LogFormat = "text"

	out := &testutil.SafeBuffer{}
	a := NewApp(context.Background(), out, config, opts...)
	t.Cleanup(func() {
		if os.Getenv("NPURUNNER_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	return a, out
}

// reportOf extracts the JSON report printed after the log lines.
func reportOf(t *testing.T, out string) map[string]any {
	t.Helper()
	start := strings.Index(out, "\n{")
	require.NotEqual(t, -1, start, "no report in output")
	dec := json.NewDecoder(strings.NewReader(out[start+1:]))
	var rep map[string]any
	require.NoError(t, dec.Decode(&rep))
	return rep
}

func TestApp_RunRecipeFile(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string][]byte{
		"recipe.json":   []byte(fillRecipe),
		"design.xclbin": []byte("xclbin"),
	})
	sink := &recordingSink{}
	a, out := setupApp(t, Config{RecipePath: filepath.Join(dir, "recipe.json"), Iterations: 3}, WithSink(sink))

	require.NoError(t, a.Run(context.Background()))

	rep := reportOf(t, out.String())
	assert.EqualValues(t, 1, rep["runs"])
	assert.Contains(t, out.String(), "Bound zeroed memory.")
	assert.Contains(t, out.String(), "iteration=2")

	require.Len(t, sink.reports, 1)
	assert.True(t, sink.closed)
}

func TestApp_RunProfile(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string][]byte{
		"recipe.json":   []byte(fillRecipe),
		"profile.hcl":   []byte("bindings = {\n  ofm = {\n    validate = { file = \"expected.bin\" }\n  }\n}\nexecution = {\n  iterations = 2\n  validate = true\n}\n"),
		"design.xclbin": []byte("xclbin"),
		"expected.bin":  {7, 7, 7, 7},
	})
	a, out := setupApp(t, Config{
		RecipePath:  filepath.Join(dir, "recipe.json"),
		ProfilePath: filepath.Join(dir, "profile.hcl"),
	})

	require.NoError(t, a.Run(context.Background()))
	rep := reportOf(t, out.String())
	execs, ok := rep["executions"].([]any)
	require.True(t, ok)
	require.Len(t, execs, 1)
	assert.Equal(t, true, execs[0].(map[string]any)["validated"])
}

func TestApp_ValidationFailureStillReports(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string][]byte{
		"design.xclbin": []byte("xclbin"),
		"expected.bin":  {7, 7, 8, 7},
	})
	sink := &recordingSink{}
	a, out := setupApp(t, Config{
		RecipePath:    fillRecipe,
		ProfilePath:   `{"bindings": {"ofm": {"validate": {"file": "expected.bin"}}}, "execution": {"validate": true}}`,
		ArtifactsRoot: dir,
	}, WithSink(sink))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrValidation)
	assert.Len(t, sink.reports, 1)
	assert.Contains(t, out.String(), "Execution failed.")
}

func TestApp_LoadError(t *testing.T) {
	a, _ := setupApp(t, Config{RecipePath: `{"header": {"xclbin": "missing.xclbin"}, "resources": {"buffers": {}}, "execution": {"runs": []}}`})
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRepo))
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	_, err = NewConfig(Config{RecipePath: "r.json", Iterations: -1})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{RecipePath: "r.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Iterations)
}

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "WARN", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "", want: slog.LevelInfo},
		{level: "loud", want: slog.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			logger := newLogger(tc.level, "json", &testutil.SafeBuffer{})
			assert.True(t, logger.Enabled(context.Background(), tc.want))
			assert.False(t, logger.Enabled(context.Background(), tc.want-1))
		})
	}
}

func TestApp_HealthHandler(t *testing.T) {
	a, _ := setupApp(t, Config{RecipePath: "r.json"})
	rec := httptest.NewRecorder()
	a.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
	assert.NoError(t, a.closeHealthCheckServer())
}
