package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/ipc"
	"github.com/hashpipe-go/hashpipe/internal/recordio"
	"github.com/hashpipe-go/hashpipe/internal/registry"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

func TestRunCountsAndPublishesResults(t *testing.T) {
	dir := t.TempDir()
	in, err := databuf.Create(dir, 1, 0, HeaderSize, BlockSize, NBlock, "test-in")
	require.NoError(t, err)
	defer in.Detach()

	st, err := status.Attach(dir, 1)
	require.NoError(t, err)
	defer st.Detach()

	sockPath := filepath.Join(t.TempDir(), "sink.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	type received struct {
		msg ipc.Message
		res Result
	}
	resultCh := make(chan received, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var msg ipc.Message
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				continue
			}
			var res Result
			_ = json.Unmarshal(msg.Payload, &res)
			resultCh <- received{msg: msg, res: res}
		}
	}()

	args := registry.NewThreadArgs(1, dir, 0, 1)
	args.Input = in
	args.Status = st
	args.Options["socket"] = sockPath
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	args.SetContext(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- run(args) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()

	values := []float64{3, 7, 11}
	for i, v := range values {
		require.NoError(t, in.WaitFree(waitCtx, i))
		buf, err := in.SlotData(i)
		require.NoError(t, err)
		recordio.EncodeScalar(buf, v)
		require.NoError(t, in.SetFilled(i))
	}

	var got []float64
	for range values {
		select {
		case r := <-resultCh:
			require.Equal(t, "result", r.msg.Type)
			got = append(got, r.res.Value)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for sink to publish a result")
		}
	}
	require.Equal(t, values, got)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	count, err := st.GetInt64(context.Background(), "SNKCNT")
	require.NoError(t, err)
	require.EqualValues(t, len(values), count)
}

func TestRunRequiresInputBuffer(t *testing.T) {
	args := registry.NewThreadArgs(1, t.TempDir(), 0, 1)
	err := run(args)
	require.Error(t, err)
}
