// Package gen implements the producer thread module in two modes: a
// ticker-driven synthetic generator (the default), standing in for the
// original's net_thread ingest stage when no live feed is available, and a
// UDP receiver that copies inbound datagrams into slots, standing in for
// the out-of-scope packet-socket receiver. Synthetic mode's ticker shape
// is grounded on the teacher's exchanges.MockFeeder; UDP mode's
// reconnect-on-error listen loop is grounded on the teacher's
// exchanges.RunConnectionLoop.
package gen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/recordio"
	"github.com/hashpipe-go/hashpipe/internal/registry"
)

// Name is the module's registered CLI name.
const Name = "gen"

const (
	HeaderSize = 128
	BlockSize  = 8192
	NBlock     = 3
	tag        = "hashpipe-gen"

	defaultPeriod = 100 * time.Millisecond

	defaultUDPAddr    = ":9000"
	udpReconnectDelay = 3 * time.Second
)

// Register installs the gen descriptor in the process-wide registry.
func Register() error {
	return registry.Register(registry.Descriptor{
		Name:      Name,
		StatusKey: "GENST",
		OutputBufferFactory: func(dir string, instanceID, bufID int) (*databuf.Buffer, error) {
			return databuf.Create(dir, instanceID, bufID, HeaderSize, BlockSize, NBlock, tag)
		},
		Run: run,
	})
}

func run(args *registry.ThreadArgs) error {
	if args.Output == nil {
		return fmt.Errorf("gen: requires an output buffer")
	}

	if modeOption(args.Options) == "udp" {
		return runUDP(args)
	}
	return runSynthetic(args)
}

func runSynthetic(args *registry.ThreadArgs) error {
	seq, fixed := fixedSequence(args.Options)
	period := periodOption(args.Options)

	ctx := args.Context()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(int64(args.InstanceID) + time.Now().UnixNano()))

	slot := 0
	n := args.Output.NBlock()
	emitted := 0

	for args.Running() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var pair recordio.Pair
		if fixed {
			if emitted >= len(seq) {
				args.MarkFinished()
				return nil
			}
			pair = seq[emitted]
		} else {
			pair = recordio.Pair{A: rng.Float64() * 100, B: rng.Float64() * 100}
		}

		if err := waitFreeHeartbeat(ctx, args, slot); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("gen: wait output free: %w", err)
		}

		buf, err := args.Output.SlotData(slot)
		if err != nil {
			return fmt.Errorf("gen: write slot %d: %w", slot, err)
		}
		pair.Encode(buf)

		if err := args.Output.SetFilled(slot); err != nil {
			return fmt.Errorf("gen: set filled: %w", err)
		}

		emitted++
		slot = (slot + 1) % n
	}
	return nil
}

// runUDP binds a net.UDPConn at the "udp_addr" option (default
// defaultUDPAddr) and copies each inbound datagram into the next output
// slot as a Pair, reconnecting (rebinding) on a receive error the way
// runConnectionLoop reconnects a dropped exchange feed.
func runUDP(args *registry.ThreadArgs) error {
	addr := addrOption(args.Options)
	ctx := args.Context()
	slot := 0
	n := args.Output.NBlock()

	return runConnectionLoop(ctx, "gen-udp", func(ctx context.Context) error {
		return receiveUDP(ctx, args, addr, &slot, n)
	})
}

// runConnectionLoop is the generic reconnect/backoff shape this module's
// UDP mode shares with the teacher's exchanges.RunConnectionLoop: call
// connect, and on error log and retry after a fixed delay, until ctx is
// cancelled, at which point connect's own cancellation (not an error) ends
// the loop cleanly.
func runConnectionLoop(ctx context.Context, name string, connect func(context.Context) error) error {
	for {
		err := connect(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		log.Printf("%s: receive error (%v), rebinding in %s", name, err, udpReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(udpReconnectDelay):
		}
	}
}

// receiveUDP binds addr and reads datagrams until ctx is cancelled or a
// socket error occurs. A datagram shorter than a Pair is dropped rather
// than treated as a fatal error, since a malformed sender shouldn't take
// down the receiver.
func receiveUDP(ctx context.Context, args *registry.ThreadArgs, addr string, slot *int, n int) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("gen: resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("gen: listen udp %s: %w", addr, err)
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()
	defer close(closed)

	buf := make([]byte, recordio.PairSize)
	for args.Running() {
		nRead, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if nRead < recordio.PairSize {
			continue
		}
		pair := recordio.DecodePair(buf)

		if err := waitFreeHeartbeat(ctx, args, *slot); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("gen: wait output free: %w", err)
		}

		outBuf, err := args.Output.SlotData(*slot)
		if err != nil {
			return fmt.Errorf("gen: write slot %d: %w", *slot, err)
		}
		pair.Encode(outBuf)

		if err := args.Output.SetFilled(*slot); err != nil {
			return fmt.Errorf("gen: set filled: %w", err)
		}
		*slot = (*slot + 1) % n
	}
	return nil
}

// modeOption reads a "mode" option, falling back to synthetic generation.
func modeOption(opts map[string]string) string {
	if opts["mode"] == "udp" {
		return "udp"
	}
	return "synthetic"
}

// addrOption reads a "udp_addr" option, falling back to defaultUDPAddr.
func addrOption(opts map[string]string) string {
	if v, ok := opts["udp_addr"]; ok && v != "" {
		return v
	}
	return defaultUDPAddr
}

func waitFreeHeartbeat(ctx context.Context, args *registry.ThreadArgs, slot int) error {
	for {
		err := args.Output.WaitFree(ctx, slot)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, databuf.ErrTimeout):
			if args.Status != nil {
				_ = args.Status.PutString(ctx, "GENWAT", "waiting free")
			}
		default:
			return err
		}
	}
}

// periodOption reads an "period_ms" option set via -o/--option, falling
// back to defaultPeriod.
func periodOption(opts map[string]string) time.Duration {
	v, ok := opts["period_ms"]
	if !ok {
		return defaultPeriod
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return defaultPeriod
	}
	return time.Duration(ms) * time.Millisecond
}

// fixedSequence exposes the acceptance-test path: if an "inputs" option is
// set to a comma-separated list of a:b pairs (e.g. "1:2,3:4,5:6"), gen
// emits exactly that sequence and then marks itself finished instead of
// generating indefinitely.
func fixedSequence(opts map[string]string) ([]recordio.Pair, bool) {
	v, ok := opts["inputs"]
	if !ok || v == "" {
		return nil, false
	}
	var out []recordio.Pair
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			tok := v[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			var a, b float64
			if _, err := fmt.Sscanf(tok, "%g:%g", &a, &b); err != nil {
				continue
			}
			out = append(out, recordio.Pair{A: a, B: b})
		}
	}
	return out, true
}
