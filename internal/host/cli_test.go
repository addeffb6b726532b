package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashpipe-go/hashpipe/internal/registry"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

func registerNoop(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, registry.Register(registry.Descriptor{
		Name:      name,
		StatusKey: "ST",
		Run:       func(*registry.ThreadArgs) error { return nil },
	}))
	t.Cleanup(registry.Reset)
}

func TestBuildHelpAction(t *testing.T) {
	_, action, err := Build([]string{"-h"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ActionHelp, action)
}

func TestBuildListAction(t *testing.T) {
	_, action, err := Build([]string{"--list"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ActionList, action)
}

func TestBuildRequiresAtLeastOneModule(t *testing.T) {
	_, _, err := Build([]string{"-I", "0"}, t.TempDir())
	require.Error(t, err)
}

func TestBuildUnknownModuleFails(t *testing.T) {
	_, _, err := Build([]string{"doesnotexist"}, t.TempDir())
	require.ErrorIs(t, err, registry.ErrNoSuchModule)
}

func TestBuildAssemblesSingleModulePipeline(t *testing.T) {
	registerNoop(t, "noop1")
	pipeline, action, err := Build([]string{"noop1"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ActionRun, action)
	require.Len(t, pipeline.Threads, 1)
	require.Equal(t, "noop1", pipeline.Threads[0].Module.Name)
}

func TestBuildInstanceFlagClampsTo6Bits(t *testing.T) {
	registerNoop(t, "noop2")
	pipeline, _, err := Build([]string{"-I", "65", "noop2"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, pipeline.Instance)
}

func TestBuildCPUFlagSetsMaskBit(t *testing.T) {
	registerNoop(t, "noop3")
	pipeline, _, err := Build([]string{"-c", "3", "noop3"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<3, pipeline.Threads[0].CPUMask)
}

func TestBuildMaskFlagSetsMaskDirectly(t *testing.T) {
	registerNoop(t, "noop4")
	pipeline, _, err := Build([]string{"-m", "0xff", "noop4"}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, uint64(0xff), pipeline.Threads[0].CPUMask)
}

func TestBuildOptionAppliesToStatusAndThreadArgs(t *testing.T) {
	registerNoop(t, "noop5")
	shmDir := t.TempDir()
	pipeline, _, err := Build([]string{"-o", "FOO=bar", "noop5"}, shmDir)
	require.NoError(t, err)
	require.Equal(t, "bar", pipeline.Threads[0].Options["FOO"])

	st, err := status.Attach(shmDir, 0)
	require.NoError(t, err)
	defer st.Detach()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := st.GetString(ctx, "FOO")
	require.NoError(t, err)
	require.Equal(t, "bar", v)
}

func TestBuildMultipleModulesAssignsSequentialBufferIDs(t *testing.T) {
	registerNoop(t, "noop6a")
	registerNoop(t, "noop6b")
	pipeline, _, err := Build([]string{"noop6a", "noop6b"}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, pipeline.Threads, 2)
	require.Equal(t, 0, pipeline.Threads[0].InputBufferID)
	require.Equal(t, 1, pipeline.Threads[0].OutputBufferID)
	require.Equal(t, 1, pipeline.Threads[1].InputBufferID)
	require.Equal(t, 2, pipeline.Threads[1].OutputBufferID)
}

func TestBuildRunsInitBeforeReturning(t *testing.T) {
	var initRan bool
	require.NoError(t, registry.Register(registry.Descriptor{
		Name: "withinit",
		Init: func(*registry.ThreadArgs) error { initRan = true; return nil },
		Run:  func(*registry.ThreadArgs) error { return nil },
	}))
	t.Cleanup(registry.Reset)

	_, _, err := Build([]string{"withinit"}, t.TempDir())
	require.NoError(t, err)
	require.True(t, initRan)
}

func TestReleaseStackUnwindsLIFO(t *testing.T) {
	var order []int
	var rel releaseStack
	rel.push(func() { order = append(order, 1) })
	rel.push(func() { order = append(order, 2) })
	rel.push(func() { order = append(order, 3) })
	rel.unwind()
	require.Equal(t, []int{3, 2, 1}, order)

	// a second unwind is a no-op
	rel.unwind()
	require.Equal(t, []int{3, 2, 1}, order)
}
