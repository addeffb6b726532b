// Command hashpipe is the pipeline host entrypoint: it registers the
// built-in thread modules, loads optional environment and pipeline
// configuration, parses the command line into a Pipeline, and runs it to
// completion or interruption.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashpipe-go/hashpipe/internal/config"
	"github.com/hashpipe-go/hashpipe/internal/host"
	"github.com/hashpipe-go/hashpipe/modules/gen"
	"github.com/hashpipe-go/hashpipe/modules/sink"
	"github.com/hashpipe-go/hashpipe/modules/sum"
)

func main() {
	if err := registerModules(); err != nil {
		fmt.Fprintln(os.Stderr, "hashpipe:", err)
		os.Exit(1)
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hashpipe:", err)
		os.Exit(1)
	}
}

// registerModules performs the explicit, main-driven registration the
// design calls for: each module's Register is invoked here rather than
// from a package init(), so the set of modules a binary supports is
// visible at its entrypoint.
func registerModules() error {
	for _, reg := range []func() error{gen.Register, sum.Register, sink.Register} {
		if err := reg(); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	return nil
}

func run(argv []string) error {
	shmDir, configPath, envPath, rest, err := splitHostFlags(argv)
	if err != nil {
		return err
	}

	if err := config.LoadEnv(envPath); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	args := rest
	var stages []config.StageConfig
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if shmDir == "/dev/shm" && cfg.ShmDir != "" {
			shmDir = cfg.ShmDir
		}
		for _, name := range cfg.Order {
			stages = append(stages, cfg.Stages[name])
		}
		instArgs := []string{"--instance", strconv.Itoa(cfg.Instance)}
		args = append(append(instArgs, config.JoinArgs(stages)...), rest...)
	}

	pipeline, action, err := host.Build(args, shmDir)
	switch action {
	case host.ActionHelp:
		fmt.Print(host.Usage)
		return nil
	case host.ActionList:
		fmt.Print(host.List())
		return nil
	}
	if err != nil {
		return err
	}

	// Priority has no CLI flag (see StageConfig.Args), so a config-driven
	// pipeline applies it directly to each thread in stage order.
	for i, stage := range stages {
		if i < len(pipeline.Threads) && stage.Priority != 0 {
			pipeline.Threads[i].Priority = stage.Priority
		}
	}

	return host.Run(pipeline)
}

// splitHostFlags pulls this entrypoint's own long-form flags (--shm-dir,
// --config, --env) out of argv and leaves every other token untouched, in
// order, for host.Build to parse. A stdlib flag.FlagSet cannot be used for
// this: argv also carries host.Build's own -I/-c/-m/-o/-h/-l flags and
// module names interleaved with these three, and flag.Parse aborts the
// instant it meets a flag it doesn't recognize instead of skipping past it.
func splitHostFlags(argv []string) (shmDir, configPath, envPath string, rest []string, err error) {
	shmDir = "/dev/shm"
	i := 0
	for i < len(argv) {
		tok := argv[i]
		switch {
		case isLongFlag(tok, "--shm-dir"):
			val, n, verr := longFlagValue(argv, i, "--shm-dir")
			if verr != nil {
				return "", "", "", nil, verr
			}
			shmDir = val
			i += n
		case isLongFlag(tok, "--config"):
			val, n, verr := longFlagValue(argv, i, "--config")
			if verr != nil {
				return "", "", "", nil, verr
			}
			configPath = val
			i += n
		case isLongFlag(tok, "--env"):
			val, n, verr := longFlagValue(argv, i, "--env")
			if verr != nil {
				return "", "", "", nil, verr
			}
			envPath = val
			i += n
		default:
			rest = append(rest, tok)
			i++
		}
	}
	return shmDir, configPath, envPath, rest, nil
}

func isLongFlag(tok, long string) bool {
	return tok == long || strings.HasPrefix(tok, long+"=")
}

func longFlagValue(argv []string, i int, long string) (value string, consumed int, err error) {
	tok := argv[i]
	if strings.HasPrefix(tok, long+"=") {
		return tok[len(long)+1:], 1, nil
	}
	if i+1 >= len(argv) {
		return "", 0, fmt.Errorf("hashpipe: %s requires a value", long)
	}
	return argv[i+1], 2, nil
}
