package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashpipe-go/hashpipe/internal/registry"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

// Action tells the caller (cmd/hashpipe's main) what Build decided to do
// before any worker is started.
type Action int

const (
	// ActionRun means argv named at least one module; Pipeline is ready
	// to Run.
	ActionRun Action = iota
	// ActionHelp means -h/--help was seen; the caller should print Usage
	// and exit 0.
	ActionHelp
	// ActionList means -l/--list was seen; the caller should print the
	// registered module names and exit 0.
	ActionList
)

// Pipeline is the fully-initialized, not-yet-started set of workers Build
// assembled from argv.
type Pipeline struct {
	Instance int
	ShmDir   string
	Threads  []*registry.ThreadArgs
}

// Usage is printed for -h/--help, matching the distilled spec's flag table.
const Usage = `Usage: hashpipe [options] MODULE [options] MODULE ...

Options:
  -h,   --help           Show this message
  -l,   --list           List all registered thread modules
  -I N, --instance=N     Set instance id for subsequent threads (0-63)
  -c N, --cpu=N          Set CPU mask 1<<N for the next thread
  -m N, --mask=N         Set CPU mask directly for the next thread
  -o K=V, --option=K=V   Store K=V in the status buffer of the current instance
`

// Build parses argv left to right exactly as the spec's CLI describes:
// options are positional with respect to module names. Each module token
// looks up its descriptor, assigns buffer ids, and runs thread init
// synchronously (transient status/buffer attach, descriptor.Init, detach)
// before moving on — mirroring the original's getopt_long loop, which calls
// hashpipe_thread_init() the moment it sees a module name, not later.
func Build(argv []string, shmDir string) (*Pipeline, Action, error) {
	instance := 0
	inBuf, outBuf := 0, 1
	var cur *registry.ThreadArgs
	pipeline := &Pipeline{ShmDir: shmDir}

	ensure := func() {
		if cur == nil {
			cur = registry.NewThreadArgs(instance, shmDir, inBuf, outBuf)
		}
	}

	i := 0
	for i < len(argv) {
		tok := argv[i]
		switch {
		case tok == "-h" || tok == "--help":
			return nil, ActionHelp, nil

		case tok == "-l" || tok == "--list":
			return nil, ActionList, nil

		case isFlag(tok, "-I", "--instance"):
			val, n, err := flagValue(argv, i, "-I", "--instance")
			if err != nil {
				return nil, ActionRun, err
			}
			v, perr := strconv.ParseInt(val, 0, 64)
			if perr != nil {
				return nil, ActionRun, fmt.Errorf("host: --instance: %w", perr)
			}
			instance = int(v) & 0x3f
			ensure()
			cur.InstanceID = instance
			i += n

		case isFlag(tok, "-c", "--cpu"):
			val, n, err := flagValue(argv, i, "-c", "--cpu")
			if err != nil {
				return nil, ActionRun, err
			}
			v, perr := strconv.ParseInt(val, 0, 64)
			if perr != nil {
				return nil, ActionRun, fmt.Errorf("host: --cpu: %w", perr)
			}
			ensure()
			cur.CPUMask = uint64(1) << uint(v)
			i += n

		case isFlag(tok, "-m", "--mask"):
			val, n, err := flagValue(argv, i, "-m", "--mask")
			if err != nil {
				return nil, ActionRun, err
			}
			v, perr := strconv.ParseUint(val, 0, 64)
			if perr != nil {
				return nil, ActionRun, fmt.Errorf("host: --mask: %w", perr)
			}
			ensure()
			cur.CPUMask = v
			i += n

		case isFlag(tok, "-o", "--option"):
			val, n, err := flagValue(argv, i, "-o", "--option")
			if err != nil {
				return nil, ActionRun, err
			}
			if err := applyOption(shmDir, instance, val); err != nil {
				return nil, ActionRun, err
			}
			ensure()
			key, value, _ := strings.Cut(val, "=")
			cur.Options[key] = value
			i += n

		case strings.HasPrefix(tok, "-") && tok != "-":
			return nil, ActionRun, fmt.Errorf("host: unrecognized option %q", tok)

		default:
			desc, err := registry.Lookup(tok)
			if err != nil {
				return nil, ActionRun, err
			}
			ensure()
			cur.Module = desc

			if err := initThread(cur); err != nil {
				return nil, ActionRun, fmt.Errorf("host: init %q: %w", tok, err)
			}

			pipeline.Threads = append(pipeline.Threads, cur)
			inBuf++
			outBuf++
			cur = nil
			i++
		}
	}

	if len(pipeline.Threads) == 0 {
		return nil, ActionRun, fmt.Errorf("host: no modules specified")
	}
	pipeline.Instance = instance
	return pipeline, ActionRun, nil
}

// isFlag reports whether tok is short, "--long", or "--long=value".
func isFlag(tok, short, long string) bool {
	return tok == short || tok == long || strings.HasPrefix(tok, long+"=")
}

// flagValue extracts a flag's value either from "--long=value" (consuming 1
// token) or from the following token (consuming 2), matching the teacher's
// and original's getopt-style flag handling.
func flagValue(argv []string, i int, short, long string) (value string, consumed int, err error) {
	tok := argv[i]
	if strings.HasPrefix(tok, long+"=") {
		return tok[len(long)+1:], 1, nil
	}
	if i+1 >= len(argv) {
		return "", 0, fmt.Errorf("host: %s requires a value", short)
	}
	return argv[i+1], 2, nil
}

// applyOption stores K=V (or a valueless K) directly into the status buffer
// of the given instance, matching the original's immediate (not deferred)
// handling of -o.
func applyOption(shmDir string, instance int, kv string) error {
	key, value, _ := strings.Cut(kv, "=")

	st, err := status.Attach(shmDir, instance)
	if err != nil {
		return fmt.Errorf("host: -o %s: %w", kv, err)
	}
	defer st.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return st.PutString(ctx, key, value)
}

// initThread runs the original's hashpipe_thread_init: attach status and
// data buffers transiently, publish "init", call the module's Init, then
// detach everything regardless of Init's outcome.
func initThread(args *registry.ThreadArgs) error {
	st, err := status.Attach(args.ShmDir, args.InstanceID)
	if err != nil {
		return err
	}
	defer st.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if args.Module.StatusKey != "" {
		if err := st.PutString(ctx, args.Module.StatusKey, "init"); err != nil {
			return err
		}
	}

	var rel releaseStack
	defer rel.unwind()

	if args.Module.InputBufferFactory != nil {
		in, err := args.Module.InputBufferFactory(args.ShmDir, args.InstanceID, args.InputBufferID)
		if err != nil {
			return fmt.Errorf("input buffer %d: %w", args.InputBufferID, err)
		}
		rel.push(func() { in.Detach() })
		args.Input = in
	}
	if args.Module.OutputBufferFactory != nil {
		out, err := args.Module.OutputBufferFactory(args.ShmDir, args.InstanceID, args.OutputBufferID)
		if err != nil {
			return fmt.Errorf("output buffer %d: %w", args.OutputBufferID, err)
		}
		rel.push(func() { out.Detach() })
		args.Output = out
	}

	var initErr error
	if args.Module.Init != nil {
		initErr = args.Module.Init(args)
	}

	// Init only needs a transient attach; the worker re-attaches its own
	// handles in runWorker. Clear the fields so runWorker always attaches
	// fresh.
	args.Input = nil
	args.Output = nil

	return initErr
}
