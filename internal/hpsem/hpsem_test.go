package hpsem

import (
	"context"
	"testing"
	"time"
	"unsafe"

	sem "github.com/tmthrgd/go-sem"

	"github.com/stretchr/testify/require"
)

func newSemaphore(t *testing.T, value uint32) *sem.Semaphore {
	t.Helper()
	buf := make([]byte, Size)
	s := At(unsafe.Pointer(&buf[0]))
	require.NoError(t, Init(s, value))
	t.Cleanup(func() { _ = s.Destroy() })
	return s
}

func TestWaitReturnsImmediatelyWhenSignaled(t *testing.T) {
	s := newSemaphore(t, 1)
	err := Wait(context.Background(), s, time.Second)
	require.NoError(t, err)
}

func TestWaitTimesOutWhenNeverPosted(t *testing.T) {
	s := newSemaphore(t, 0)
	start := time.Now()
	err := Wait(context.Background(), s, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.WithinDuration(t, start.Add(50*time.Millisecond), time.Now(), 200*time.Millisecond)
}

func TestWaitRespectsCancellation(t *testing.T) {
	s := newSemaphore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Wait(ctx, s, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPostWakesWaiter(t *testing.T) {
	s := newSemaphore(t, 0)
	done := make(chan error, 1)
	go func() {
		done <- Wait(context.Background(), s, time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, Post(s))
	require.NoError(t, <-done)
}

func TestReinitRecoversAfterDestroy(t *testing.T) {
	buf := make([]byte, Size)
	s := At(unsafe.Pointer(&buf[0]))
	require.NoError(t, Init(s, 0))
	require.NoError(t, Reinit(s, 1))
	require.NoError(t, Wait(context.Background(), s, time.Second))
}
