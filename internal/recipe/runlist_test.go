package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/npurunner/internal/device"
)

func TestBuildRunlists_PartitionsByKind(t *testing.T) {
	const text = `{
  "header": {"xclbin": "design.xclbin"},
  "resources": {
    "buffers": {"a": {"type": "internal", "size": 4}, "b": {"type": "internal", "size": 4}},
    "kernels": [{"name": "copy"}],
    "cpus": [{"name": "copy", "library_name": "libsimhost.so"}]
  },
  "execution": {
    "runs": [
      {"name": "copy", "arguments": [{"name": "a", "argidx": 0}, {"name": "b", "argidx": 1}]},
      {"name": "copy", "arguments": [{"name": "b", "argidx": 0}, {"name": "a", "argidx": 1}]},
      {"name": "copy", "where": "cpu", "arguments": [{"name": "a", "argidx": 0}, {"name": "b", "argidx": 1}]},
      {"name": "copy", "arguments": [{"name": "b", "argidx": 0}, {"name": "a", "argidx": 1}]}
    ]
  }
}`
	_, plat := newPlatform(t)
	r := loadRecipe(t, plat, text)

	type shape struct {
		kind Kind
		runs int
	}
	var got []shape
	for _, rl := range r.Execution().Runlists() {
		got = append(got, shape{rl.Kind(), rl.Len()})
	}
	assert.Equal(t, []shape{{NPU, 2}, {CPU, 1}, {NPU, 1}}, got)
}

func TestBuildRunlists_Empty(t *testing.T) {
	runlists, err := buildRunlists(nil, 6, nil)
	require.NoError(t, err)
	assert.Empty(t, runlists)
}

func TestNPURunlist_PromotesAtThreshold(t *testing.T) {
	fb := &fakeBatch{}
	batches := 0
	rl := newNPURunlist(3, func() (device.Batch, error) {
		batches++
		return fb, nil
	})

	testCases := []struct {
		state    npuState
		inBatch  int
		perRun   int
		newBatch int
	}{
		{state: perRun, perRun: 1},
		{state: perRun, perRun: 2},
		{state: batched, inBatch: 3, newBatch: 1},
		{state: batched, inBatch: 4, newBatch: 1},
		{state: batched, inBatch: 5, newBatch: 1},
	}
	var added []device.KernelRun
	for i, tc := range testCases {
		run := &countingRun{}
		added = append(added, run)
		require.NoError(t, rl.add(run))

		assert.Equal(t, tc.state, rl.State(), "after add %d", i+1)
		assert.Len(t, fb.runs, tc.inBatch, "after add %d", i+1)
		assert.Len(t, rl.runs, tc.perRun, "after add %d", i+1)
		assert.Equal(t, tc.newBatch, batches, "after add %d", i+1)
		assert.Equal(t, i+1, rl.Len())
	}
	// Promotion preserves insertion order.
	assert.Equal(t, added, fb.runs)
	assert.Error(t, rl.promote())
}

func TestNPURunlist_ThresholdOfOneBatchesImmediately(t *testing.T) {
	fb := &fakeBatch{}
	rl := newNPURunlist(1, func() (device.Batch, error) { return fb, nil })
	require.NoError(t, rl.add(&countingRun{}))
	assert.Equal(t, batched, rl.State())
}

func TestNPURunlist_PerRunIterations(t *testing.T) {
	t.Run("execute, wait, execute", func(t *testing.T) {
		a, b := &countingRun{}, &countingRun{}
		rl := newNPURunlist(6, nil)
		require.NoError(t, rl.add(a))
		require.NoError(t, rl.add(b))

		require.NoError(t, rl.Execute(0))
		require.NoError(t, rl.Wait())
		require.NoError(t, rl.Execute(1))
		require.NoError(t, rl.Wait())

		for _, run := range []*countingRun{a, b} {
			assert.Equal(t, 2, run.starts)
			assert.Equal(t, 2, run.waits)
		}
	})

	t.Run("execute twice without wait", func(t *testing.T) {
		a, b := &countingRun{}, &countingRun{}
		rl := newNPURunlist(6, nil)
		require.NoError(t, rl.add(a))
		require.NoError(t, rl.add(b))

		require.NoError(t, rl.Execute(0))
		require.NoError(t, rl.Execute(1), "each run is waited before it is restarted")
		require.NoError(t, rl.Wait())

		for _, run := range []*countingRun{a, b} {
			assert.Equal(t, 2, run.starts)
			assert.Equal(t, 2, run.waits)
		}
	})
}

func TestNPURunlist_BatchedIterations(t *testing.T) {
	fb := &fakeBatch{}
	rl := newNPURunlist(1, func() (device.Batch, error) { return fb, nil })
	require.NoError(t, rl.add(&countingRun{}))

	require.NoError(t, rl.Execute(0))
	assert.Equal(t, 0, fb.waits)
	require.NoError(t, rl.Execute(1))
	assert.Equal(t, 1, fb.waits)
	require.NoError(t, rl.Wait())
	assert.Equal(t, 2, fb.executes)
	assert.Equal(t, 2, fb.waits)
}

func TestNPURunlist_FaultsSurfaceAtWait(t *testing.T) {
	boom := errors.New("boom")

	t.Run("per-run", func(t *testing.T) {
		a, b := &countingRun{}, &countingRun{fault: boom}
		rl := newNPURunlist(6, nil)
		require.NoError(t, rl.add(a))
		require.NoError(t, rl.add(b))

		require.NoError(t, rl.Execute(0))
		require.NoError(t, rl.Execute(1), "a fault of iteration 0 is not reported by Execute")
		err := rl.Wait()
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "iteration 0: run 1")
		assert.NoError(t, rl.Wait())
		assert.Equal(t, 2, b.starts)
	})

	t.Run("batched", func(t *testing.T) {
		fb := &fakeBatch{fault: boom}
		rl := newNPURunlist(1, func() (device.Batch, error) { return fb, nil })
		require.NoError(t, rl.add(&countingRun{}))

		require.NoError(t, rl.Execute(0))
		require.NoError(t, rl.Execute(1))
		assert.ErrorIs(t, rl.Wait(), boom)
		assert.NoError(t, rl.Wait())
		assert.Equal(t, 2, fb.executes)
	})
}

func TestCPURunlist_ExecutesInline(t *testing.T) {
	var calls []string
	fn := func(name string) *device.HostFunction {
		return &device.HostFunction{Name: name, Fn: func([]any) error {
			calls = append(calls, name)
			return nil
		}}
	}
	rl := &cpuRunlist{runs: []*device.HostRun{device.NewHostRun(fn("first")), device.NewHostRun(fn("second"))}}

	require.NoError(t, rl.Execute(0))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.NoError(t, rl.Wait())
	assert.Equal(t, CPU, rl.Kind())
	assert.Equal(t, 2, rl.Len())
}
