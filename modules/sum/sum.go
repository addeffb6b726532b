// Package sum implements a minimal processor thread module: it reads
// two-operand Pair records from its input buffer and writes their sum to
// its output buffer. It is the direct analogue of the original
// examples/process_data_thread.c and is the acceptance test for the
// spec's S1 two-stage-sum scenario.
package sum

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/recordio"
	"github.com/hashpipe-go/hashpipe/internal/registry"
)

// Name is the module's registered CLI name.
const Name = "sum"

// HeaderSize, BlockSize, and NBlock match the original's
// examples/databuf.c sizing (128, 8192, 3), which leaves ample room for
// PairSize/ScalarSize records per block.
const (
	HeaderSize = 128
	BlockSize  = 8192
	NBlock     = 3
	tag        = "hashpipe-sum"
)

// Register installs the sum descriptor in the process-wide registry. Called
// explicitly from cmd/hashpipe's main, per the spec's registration design
// note — not from a package init().
func Register() error {
	return registry.Register(registry.Descriptor{
		Name:      Name,
		StatusKey: "SUMST",
		InputBufferFactory: func(dir string, instanceID, bufID int) (*databuf.Buffer, error) {
			return databuf.Create(dir, instanceID, bufID, HeaderSize, BlockSize, NBlock, tag)
		},
		OutputBufferFactory: func(dir string, instanceID, bufID int) (*databuf.Buffer, error) {
			return databuf.Create(dir, instanceID, bufID, HeaderSize, BlockSize, NBlock, tag)
		},
		Run: run,
	})
}

func run(args *registry.ThreadArgs) error {
	if args.Input == nil || args.Output == nil {
		return fmt.Errorf("sum: requires both input and output buffers")
	}

	ctx := args.Context()
	slot := 0
	n := args.Input.NBlock()

	for args.Running() {
		if err := waitFilled(ctx, args.Input, slot, args.Status, "SUMWAT"); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("sum: wait input filled: %w", err)
		}

		in, err := args.Input.SlotData(slot)
		if err != nil {
			return fmt.Errorf("sum: read input slot %d: %w", slot, err)
		}
		pair := recordio.DecodePair(in)

		if err := waitFree(ctx, args.Output, slot, args.Status, "SUMWAT"); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("sum: wait output free: %w", err)
		}

		out, err := args.Output.SlotData(slot)
		if err != nil {
			return fmt.Errorf("sum: write output slot %d: %w", slot, err)
		}
		recordio.EncodeScalar(out, pair.A+pair.B)

		if err := args.Output.SetFilled(slot); err != nil {
			return fmt.Errorf("sum: set output filled: %w", err)
		}
		if err := args.Input.SetFree(slot); err != nil {
			return fmt.Errorf("sum: set input free: %w", err)
		}

		slot = (slot + 1) % n
	}
	return nil
}

// waitFilled retries across TIMEOUT, publishing a liveness heartbeat to the
// status buffer each time, until the slot fills or the run flag clears.
func waitFilled(ctx context.Context, buf *databuf.Buffer, slot int, st interface {
	PutString(context.Context, string, string) error
}, key string) error {
	for {
		err := buf.WaitFilled(ctx, slot)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, databuf.ErrTimeout):
			heartbeat(ctx, st, key, "waiting filled")
		default:
			return err
		}
	}
}

func waitFree(ctx context.Context, buf *databuf.Buffer, slot int, st interface {
	PutString(context.Context, string, string) error
}, key string) error {
	for {
		err := buf.WaitFree(ctx, slot)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, databuf.ErrTimeout):
			heartbeat(ctx, st, key, "waiting free")
		default:
			return err
		}
	}
}

func heartbeat(ctx context.Context, st interface {
	PutString(context.Context, string, string) error
}, key, value string) {
	if st == nil || key == "" {
		return
	}
	_ = st.PutString(ctx, key, value)
}
