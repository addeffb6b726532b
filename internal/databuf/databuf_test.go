package databuf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testHeaderSize = 128
	testBlockSize  = 64
	testNBlock     = 3
)

func createTest(t *testing.T) *Buffer {
	t.Helper()
	dir := t.TempDir()
	b, err := Create(dir, 1, 0, testHeaderSize, testBlockSize, testNBlock, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

func TestCreateInitializesAllSlotsEmpty(t *testing.T) {
	b := createTest(t)
	for i := 0; i < b.NBlock(); i++ {
		st, err := b.BlockStatus(i)
		require.NoError(t, err)
		require.Equal(t, Empty, st)
	}
	nFilled, nEmpty := b.TotalStatus()
	require.Equal(t, 0, nFilled)
	require.Equal(t, testNBlock, nEmpty)
}

func TestCreateRejectsTooFewBlocks(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, 1, 0, testHeaderSize, testBlockSize, 1, "test")
	require.ErrorIs(t, err, ErrShm)
}

func TestCreateRejectsUndersizedHeader(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, 1, 0, 8, testBlockSize, testNBlock, "test")
	require.ErrorIs(t, err, ErrShm)
}

func TestCreateTwiceWithSameSizingAttaches(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(dir, 1, 0, testHeaderSize, testBlockSize, testNBlock, "test")
	require.NoError(t, err)
	defer a.Detach()

	b, err := Create(dir, 1, 0, testHeaderSize, testBlockSize, testNBlock, "test")
	require.NoError(t, err)
	defer b.Detach()

	require.Equal(t, a.SystemID(), b.SystemID())
}

func TestCreateTwiceWithDifferentSizingFails(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(dir, 1, 0, testHeaderSize, testBlockSize, testNBlock, "test")
	require.NoError(t, err)
	defer a.Detach()

	_, err = Create(dir, 1, 0, testHeaderSize, testBlockSize*2, testNBlock, "test")
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestAttachMirrorsCreatedSizing(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(dir, 2, 0, testHeaderSize, testBlockSize, testNBlock, "mytag")
	require.NoError(t, err)
	defer a.Detach()

	b, err := Attach(dir, 2, 0)
	require.NoError(t, err)
	defer b.Detach()

	require.Equal(t, testNBlock, b.NBlock())
	require.Equal(t, testBlockSize, b.BlockSize())
	require.Equal(t, "mytag", b.Tag())
}

func TestSetFilledThenWaitFilledThenSetFree(t *testing.T) {
	b := createTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, err := b.SlotData(0)
	require.NoError(t, err)
	data[0] = 0xAB

	require.NoError(t, b.SetFilled(0))

	st, err := b.BlockStatus(0)
	require.NoError(t, err)
	require.Equal(t, Filled, st)

	require.NoError(t, b.WaitFilled(ctx, 0))

	data, err = b.SlotData(0)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), data[0])

	require.NoError(t, b.SetFree(0))
	st, err = b.BlockStatus(0)
	require.NoError(t, err)
	require.Equal(t, Empty, st)
}

func TestSetFilledTwiceIsMisuse(t *testing.T) {
	b := createTest(t)
	require.NoError(t, b.SetFilled(0))
	err := b.SetFilled(0)
	require.ErrorIs(t, err, ErrMisuse)
}

func TestSetFreeOnEmptySlotIsMisuse(t *testing.T) {
	b := createTest(t)
	err := b.SetFree(0)
	require.ErrorIs(t, err, ErrMisuse)
}

func TestWaitFilledTimesOutOnEmptySlot(t *testing.T) {
	b := createTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	err := b.WaitFilled(ctx, 1)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSlotDataRejectsOutOfRange(t *testing.T) {
	b := createTest(t)
	_, err := b.SlotData(-1)
	require.ErrorIs(t, err, ErrInvalidSlot)
	_, err = b.SlotData(testNBlock)
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func TestProducerConsumerHandoffAcrossAllSlots(t *testing.T) {
	b := createTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < b.NBlock(); i++ {
		require.NoError(t, b.WaitFree(ctx, i))
		data, err := b.SlotData(i)
		require.NoError(t, err)
		data[0] = byte(i)
		require.NoError(t, b.SetFilled(i))
	}

	for i := 0; i < b.NBlock(); i++ {
		require.NoError(t, b.WaitFilled(ctx, i))
		data, err := b.SlotData(i)
		require.NoError(t, err)
		require.Equal(t, byte(i), data[0])
		require.NoError(t, b.SetFree(i))
	}
}
