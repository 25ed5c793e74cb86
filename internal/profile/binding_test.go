package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/failure"
)

func newTestBinding(t *testing.T, spec description.Binding, extra map[string][]byte) *Binding {
	t.Helper()
	repo := newRepo(extra)
	b, err := newBinding(context.Background(), loadRecipe(t, repo), repo, spec)
	require.NoError(t, err)
	return b
}

func TestBinding_StrideInit(t *testing.T) {
	b := newTestBinding(t, description.Binding{
		Name:   "ifm",
		Reinit: true,
		Init:   &description.Init{Kind: description.InitStride, Stride: 4, Value: 0x01020304, Begin: 0, End: 16},
	}, nil)

	want := []byte{
		0x04, 0x03, 0x02, 0x01, 0x04, 0x03, 0x02, 0x01,
		0x04, 0x03, 0x02, 0x01, 0x04, 0x03, 0x02, 0x01,
	}
	assert.Equal(t, want, b.Memory().Bytes())

	for _, iteration := range []int{1, 2, 7} {
		require.NoError(t, b.Reinit(iteration))
		assert.Equal(t, want, b.Memory().Bytes(), "iteration %d", iteration)
	}
}

func TestBinding_StrideWiderThanValue(t *testing.T) {
	b := newTestBinding(t, description.Binding{
		Name: "ifm",
		Init: &description.Init{Kind: description.InitStride, Stride: 12, Value: 0xff, Begin: 2},
	}, nil)

	want := make([]byte, 16)
	want[2] = 0xff
	want[14] = 0xff
	assert.Equal(t, want, b.Memory().Bytes())
}

func TestBinding_FileInitWrapsAndShifts(t *testing.T) {
	const text = `{
  "header": {"xclbin": "design.xclbin"},
  "resources": {"buffers": {"io": {"type": "inout", "size": 6}}},
  "execution": {"runs": []}
}`
	repo := newRepo(map[string][]byte{"src.bin": {0xaa, 1, 2, 3, 4}})
	_, plat := newPlatform()
	rec, err := recipeLoad(plat, text, repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	b, err := newBinding(context.Background(), rec, repo, description.Binding{
		Name:   "io",
		Reinit: true,
		Init:   &description.Init{Kind: description.InitFile, File: "src.bin", Skip: 1},
	})
	require.NoError(t, err)

	testCases := []struct {
		iteration int
		want      []byte
	}{
		{iteration: 0, want: []byte{1, 2, 3, 4, 1, 2}},
		{iteration: 1, want: []byte{3, 4, 1, 2, 3, 4}},
		{iteration: 2, want: []byte{1, 2, 3, 4, 1, 2}},
	}
	for _, tc := range testCases {
		require.NoError(t, b.Reinit(tc.iteration))
		assert.Equal(t, tc.want, b.Memory().Bytes(), "iteration %d", tc.iteration)
	}
}

func TestBinding_FileInitInfersSize(t *testing.T) {
	const text = `{
  "header": {"xclbin": "design.xclbin"},
  "resources": {"buffers": {"io": {"type": "input"}}},
  "execution": {"runs": []}
}`
	repo := newRepo(nil)
	_, plat := newPlatform()
	rec, err := recipeLoad(plat, text, repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	b, err := newBinding(context.Background(), rec, repo, description.Binding{
		Name: "io",
		Init: &description.Init{Kind: description.InitFile, File: "golden.bin", Skip: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, golden[4:], b.Memory().Bytes())
}

func TestBinding_ReinitOnlyWhenRequested(t *testing.T) {
	b := newTestBinding(t, description.Binding{
		Name: "ifm",
		Init: &description.Init{Kind: description.InitFile, File: "golden.bin"},
	}, nil)

	copy(b.Memory().Bytes(), make([]byte, 16))
	require.NoError(t, b.Reinit(1))
	assert.Equal(t, make([]byte, 16), b.Memory().Bytes())
}

func TestBinding_RandomInit(t *testing.T) {
	b := newTestBinding(t, description.Binding{
		Name: "ifm",
		Init: &description.Init{Kind: description.InitRandom, Begin: 8},
	}, nil)

	data := b.Memory().Bytes()
	assert.Equal(t, make([]byte, 8), data[:8])
	assert.NotEqual(t, make([]byte, 8), data[8:])
}

func TestBinding_Validate(t *testing.T) {
	mismatch := append([]byte(nil), golden...)
	mismatch[5] = 0x00

	testCases := []struct {
		name     string
		validate *description.Validate
		want     *failure.ValidationError
	}{
		{
			name:     "matching golden file",
			validate: &description.Validate{File: "golden.bin"},
		},
		{
			name:     "range of a full golden file",
			validate: &description.Validate{File: "golden.bin", Begin: 8},
		},
		{
			name:     "skip drops a file header",
			validate: &description.Validate{File: "headed.bin", Skip: 4, Begin: 2, End: 10},
		},
		{
			name:     "first differing byte",
			validate: &description.Validate{File: "mismatch.bin"},
			want:     &failure.ValidationError{Binding: "ifm", Offset: 5, Got: 0x55, Want: 0x00},
		},
		{
			name:     "offset is absolute within the buffer",
			validate: &description.Validate{File: "mismatch.bin", Begin: 4, End: 12},
			want:     &failure.ValidationError{Binding: "ifm", Offset: 5, Got: 0x55, Want: 0x00},
		},
		{
			name:     "size mismatch",
			validate: &description.Validate{File: "short.bin"},
			want:     &failure.ValidationError{Binding: "ifm", Offset: 8, SizeMismatch: true, GotSize: 16, WantSize: 8},
		},
		{
			name:     "range past the end of a short file",
			validate: &description.Validate{File: "short.bin", Begin: 4, End: 12},
			want:     &failure.ValidationError{Binding: "ifm", Offset: 8, SizeMismatch: true, GotSize: 8, WantSize: 4},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBinding(t, description.Binding{
				Name:     "ifm",
				Init:     &description.Init{Kind: description.InitFile, File: "golden.bin"},
				Validate: tc.validate,
			}, map[string][]byte{
				"mismatch.bin": mismatch,
				"short.bin":    golden[:8],
				"headed.bin":   append([]byte{0xde, 0xad, 0xbe, 0xef}, golden...),
			})

			err := b.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, failure.ErrValidation)
			var verr *failure.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.want, verr)
		})
	}
}

func TestBinding_ConstructionErrors(t *testing.T) {
	testCases := []struct {
		name string
		spec description.Binding
	}{
		{name: "unknown buffer", spec: description.Binding{Name: "nope"}},
		{name: "size differs from declaration", spec: description.Binding{Name: "ifm", Size: 8}},
		{
			name: "range beyond the buffer",
			spec: description.Binding{Name: "ifm", Init: &description.Init{Kind: description.InitRandom, End: 32}},
		},
		{
			name: "skip beyond the source",
			spec: description.Binding{Name: "ifm", Init: &description.Init{Kind: description.InitFile, File: "golden.bin", Skip: 16}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newRepo(nil)
			_, err := newBinding(context.Background(), loadRecipe(t, repo), repo, tc.spec)
			assert.ErrorIs(t, err, failure.ErrProfile)
		})
	}

	t.Run("missing init file", func(t *testing.T) {
		repo := newRepo(nil)
		_, err := newBinding(context.Background(), loadRecipe(t, repo), repo, description.Binding{
			Name: "ifm", Init: &description.Init{Kind: description.InitFile, File: "missing.bin"},
		})
		assert.ErrorIs(t, err, failure.ErrRepo)
	})
}
