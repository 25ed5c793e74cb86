package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/device/sim"
	"github.com/vk/npurunner/internal/recipe"
)

// copyRecipe copies a 16 byte ifm into ofm on the NPU.
const copyRecipe = `{
  "header": {"xclbin": "design.xclbin"},
  "resources": {
    "buffers": {
      "ifm": {"type": "input", "size": 16},
      "ofm": {"type": "output", "size": 16}
    },
    "kernels": [{"name": "copy"}]
  },
  "execution": {
    "runs": [
      {"name": "copy", "arguments": [{"name": "ifm", "argidx": 0}, {"name": "ofm", "argidx": 1}]}
    ]
  }
}`

var golden = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
}

func newPlatform() (*sim.Device, recipe.Platform) {
	d := sim.New()
	sim.RegisterBuiltins(d)
	return d, recipe.Platform{Device: d, Host: d}
}

func newRepo(extra map[string][]byte) artifacts.Repo {
	files := map[string][]byte{
		"design.xclbin": []byte("xclbin"),
		"golden.bin":    golden,
	}
	for k, v := range extra {
		files[k] = v
	}
	return artifacts.NewMemRepo(files)
}

func loadProfile(t *testing.T, profileText string, repo artifacts.Repo) *Profile {
	t.Helper()
	_, plat := newPlatform()
	p, err := Load(context.Background(), plat, copyRecipe, profileText, repo)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func loadRecipe(t *testing.T, repo artifacts.Repo) *recipe.Recipe {
	t.Helper()
	_, plat := newPlatform()
	r, err := recipe.Load(context.Background(), plat, copyRecipe, repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func decodeProfile(t *testing.T, text string) *description.Profile {
	t.Helper()
	doc, err := description.Load(context.Background(), text)
	require.NoError(t, err)
	desc, err := description.DecodeProfile(doc)
	require.NoError(t, err)
	return desc
}

// stubRecipe serves executions made of runlists from newRunlist. It has
// no buffers.
type stubRecipe struct {
	newRunlist func() recipe.Runlist
	base       *recipe.Execution
	runlists   []recipe.Runlist
	runs       int
}

func newStubRecipe(newRunlist func() recipe.Runlist) *stubRecipe {
	s := &stubRecipe{newRunlist: newRunlist, runs: 1}
	s.base = s.newExecution()
	return s
}

func (s *stubRecipe) newExecution() *recipe.Execution {
	rl := s.newRunlist()
	s.runlists = append(s.runlists, rl)
	return recipe.NewExecution(rl)
}

func (s *stubRecipe) Execution() *recipe.Execution               { return s.base }
func (s *stubRecipe) CloneExecution() (*recipe.Execution, error) { return s.newExecution(), nil }
func (s *stubRecipe) RunCount() int                              { return s.runs }
func (s *stubRecipe) Buffer(string) (*recipe.Buffer, bool)       { return nil, false }
func (s *stubRecipe) MapBuffer(string) []byte                    { return nil }
func (s *stubRecipe) Report() recipe.Report                      { return recipe.Report{} }
func (s *stubRecipe) Close() error                               { return nil }

func (s *stubRecipe) Alloc(int) (device.Buffer, error) {
	return nil, errors.New("stub recipe has no device")
}

func recipeLoad(plat recipe.Platform, text string, repo artifacts.Repo) (*recipe.Recipe, error) {
	return recipe.Load(context.Background(), plat, text, repo)
}
