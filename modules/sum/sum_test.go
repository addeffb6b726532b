package sum

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/recordio"
	"github.com/hashpipe-go/hashpipe/internal/registry"
)

// TestRunComputesElementwiseSums drives run directly, acting as both the
// upstream producer and downstream consumer, and checks the exact
// acceptance values: (1,2),(3,4),(5,6) -> 3,7,11, in order.
func TestRunComputesElementwiseSums(t *testing.T) {
	dir := t.TempDir()
	in, err := databuf.Create(dir, 1, 0, HeaderSize, BlockSize, NBlock, "test-in")
	require.NoError(t, err)
	defer in.Detach()
	out, err := databuf.Create(dir, 1, 1, HeaderSize, BlockSize, NBlock, "test-out")
	require.NoError(t, err)
	defer out.Detach()

	args := registry.NewThreadArgs(1, dir, 0, 1)
	args.Input = in
	args.Output = out
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	args.SetContext(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- run(args) }()

	inputs := []recordio.Pair{{A: 1, B: 2}, {A: 3, B: 4}, {A: 5, B: 6}}
	want := []float64{3, 7, 11}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()

	for i, p := range inputs {
		require.NoError(t, in.WaitFree(waitCtx, i))
		buf, err := in.SlotData(i)
		require.NoError(t, err)
		p.Encode(buf)
		require.NoError(t, in.SetFilled(i))
	}

	for i, w := range want {
		require.NoError(t, out.WaitFilled(waitCtx, i))
		buf, err := out.SlotData(i)
		require.NoError(t, err)
		require.Equal(t, w, recordio.DecodeScalar(buf))
		require.NoError(t, out.SetFree(i))
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunRequiresBothBuffers(t *testing.T) {
	args := registry.NewThreadArgs(1, t.TempDir(), 0, 1)
	err := run(args)
	require.Error(t, err)
}
