// Package sink implements the final-stage consumer thread module: it
// drains its input buffer, tracks per-block throughput counters in the
// status buffer, and optionally streams decoded scalar results to an
// external Unix-socket listener via internal/ipc. It is the terminal
// stage of the spec's S1 two-stage-sum scenario.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/ipc"
	"github.com/hashpipe-go/hashpipe/internal/recordio"
	"github.com/hashpipe-go/hashpipe/internal/registry"
)

// Name is the module's registered CLI name.
const Name = "sink"

const (
	HeaderSize = 128
	BlockSize  = 8192
	NBlock     = 3
	tag        = "hashpipe-sink"
)

// Result is published over an ipc.Publisher, one per consumed block.
type Result struct {
	InstanceID int     `json:"instance_id"`
	Block      int64   `json:"block"`
	Value      float64 `json:"value"`
}

// Register installs the sink descriptor in the process-wide registry.
func Register() error {
	return registry.Register(registry.Descriptor{
		Name:      Name,
		StatusKey: "SNKST",
		InputBufferFactory: func(dir string, instanceID, bufID int) (*databuf.Buffer, error) {
			return databuf.Create(dir, instanceID, bufID, HeaderSize, BlockSize, NBlock, tag)
		},
		Run: run,
	})
}

func run(args *registry.ThreadArgs) error {
	if args.Input == nil {
		return fmt.Errorf("sink: requires an input buffer")
	}

	var pub *ipc.Publisher
	if sock := args.Options["socket"]; sock != "" {
		pub = ipc.NewPublisher(sock)
		defer pub.Close()
	}

	ctx := args.Context()
	slot := 0
	n := args.Input.NBlock()
	var total int64

	for args.Running() {
		err := args.Input.WaitFilled(ctx, slot)
		switch {
		case err == nil:
		case errors.Is(err, databuf.ErrTimeout):
			publishCount(ctx, args, total)
			continue
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("sink: wait filled: %w", err)
		}

		buf, err := args.Input.SlotData(slot)
		if err != nil {
			return fmt.Errorf("sink: read slot %d: %w", slot, err)
		}
		value := recordio.DecodeScalar(buf)
		total++

		if pub != nil {
			pub.Publish("result", Result{
				InstanceID: args.InstanceID,
				Block:      total,
				Value:      value,
			})
		}

		if err := args.Input.SetFree(slot); err != nil {
			return fmt.Errorf("sink: set free: %w", err)
		}
		publishCount(ctx, args, total)

		slot = (slot + 1) % n
	}
	return nil
}

func publishCount(ctx context.Context, args *registry.ThreadArgs, total int64) {
	if args.Status == nil {
		return
	}
	_ = args.Status.PutInt64(ctx, "SNKCNT", total)
}
