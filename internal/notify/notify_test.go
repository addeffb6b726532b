package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashpipe-go/hashpipe/internal/status"
)

func TestWatcherPublishesChangedKeysOnly(t *testing.T) {
	shmDir := t.TempDir()
	st, err := status.Attach(shmDir, 4)
	require.NoError(t, err)
	defer st.Detach()
	require.NoError(t, st.PutString(context.Background(), "STATE", "init"))

	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	updates := make(chan Update, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var env struct {
				Type    string `json:"type"`
				Payload Update `json:"payload"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
				continue
			}
			updates <- env.Payload
		}
	}()

	w, err := NewWatcher(shmDir, 4, sockPath, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	first := waitForUpdate(t, updates, "STATE")
	require.Equal(t, "'init'", first.Value)

	require.NoError(t, st.PutString(context.Background(), "STATE", "running"))
	second := waitForUpdate(t, updates, "STATE")
	require.Equal(t, "'running'", second.Value)
}

func waitForUpdate(t *testing.T, ch chan Update, key string) Update {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Key == key {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for an update to key %q", key)
		}
	}
}
