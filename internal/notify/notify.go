// Package notify implements the status-buffer watcher sidecar: it polls
// an instance's status buffer, diffs successive snapshots, and publishes
// one envelope per changed key over a Unix-socket ipc.Publisher. It lets
// an external process observe pipeline state without itself taking the
// status buffer's lock or linking against shared memory.
//
// Adapted from the teacher's ipc.Publisher usage pattern in its exchange
// feeders (attach a data source, publish deltas as they occur) applied to
// status-buffer polling instead of a live market feed.
package notify

import (
	"context"
	"time"

	"github.com/hashpipe-go/hashpipe/internal/ipc"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

// DefaultInterval is how often the watcher polls the status buffer.
const DefaultInterval = 200 * time.Millisecond

// Update is the envelope published for each changed key.
type Update struct {
	InstanceID int       `json:"instance_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Watcher polls one instance's status buffer and republishes deltas.
type Watcher struct {
	instanceID int
	status     *status.Buffer
	pub        *ipc.Publisher
	interval   time.Duration
	last       map[string]string
}

// NewWatcher attaches to the status buffer for instanceID under shmDir and
// creates the Publisher it sends changes through, dialing socketPath.
func NewWatcher(shmDir string, instanceID int, socketPath string, interval time.Duration) (*Watcher, error) {
	st, err := status.Attach(shmDir, instanceID)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		instanceID: instanceID,
		status:     st,
		pub:        ipc.NewPublisher(socketPath),
		interval:   interval,
		last:       make(map[string]string),
	}, nil
}

// Close detaches the status buffer and the publisher's connection.
func (w *Watcher) Close() error {
	w.pub.Close()
	return w.status.Detach()
}

// Run polls until ctx is cancelled, publishing one Update per key whose
// value changed (or appeared) since the previous poll.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) error {
	snap, err := w.status.Snapshot(ctx)
	if err != nil {
		return err
	}
	now := observedAt()
	for key, value := range snap {
		if prev, ok := w.last[key]; ok && prev == value {
			continue
		}
		w.pub.Publish("status_update", Update{
			InstanceID: w.instanceID,
			Key:        key,
			Value:      value,
			ObservedAt: now,
		})
	}
	w.last = snap
	return nil
}

// observedAt is a seam so tests can stub the clock; production uses the
// wall clock directly since scripts may not pass timestamps through args.
var observedAt = func() time.Time { return time.Now() }
