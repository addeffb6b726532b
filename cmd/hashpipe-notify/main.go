// Command hashpipe-notify watches a pipeline instance's status buffer and
// republishes changed keys over a Unix socket, for external processes
// that want to observe pipeline state without linking against shared
// memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashpipe-go/hashpipe/internal/notify"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hashpipe-notify:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("hashpipe-notify", flag.ContinueOnError)
	shmDir := fs.String("shm-dir", "/dev/shm", "directory holding hashpipe shared-memory segments")
	instance := fs.Int("instance", 0, "pipeline instance id to watch")
	socket := fs.String("socket", "/tmp/hashpipe-notify.sock", "unix socket path to publish updates to")
	interval := fs.Duration("interval", notify.DefaultInterval, "poll interval")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	w, err := notify.NewWatcher(*shmDir, *instance, *socket, *interval)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log.Printf("hashpipe-notify: watching instance %d under %s, polling every %s", *instance, *shmDir, interval.String())
	return w.Run(ctx)
}
