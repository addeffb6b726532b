package shmmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathNamespacesByInstance(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(filepath.Join("/dev/shm", "hashpipe.0.status"), Path("", 0, "status"))
	assert.Equal(filepath.Join("/tmp", "hashpipe.3.buf0"), Path("/tmp", 3, "buf0"))
	// Instance ids wrap at 6 bits, mirroring the CLI's -I clamp.
	assert.Equal(filepath.Join("/tmp", "hashpipe.1.status"), Path("/tmp", 65, "status"))
}

func TestCreateInitializesAndReattaches(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "region")

	r1, created, ok, err := Create(path, 4096)
	require.NoError(err)
	require.True(created)
	require.True(ok)
	require.Len(r1.Data, 4096)

	r1.Data[0] = 0x42
	require.NoError(r1.Close())

	r2, created, ok, err := Create(path, 4096)
	require.NoError(err)
	require.False(created)
	require.True(ok)
	require.Equal(byte(0x42), r2.Data[0])
	require.NoError(r2.Close())
}

func TestCreateRejectsSizeMismatch(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "region")

	r1, _, ok, err := Create(path, 4096)
	require.NoError(err)
	require.True(ok)
	require.NoError(r1.Close())

	_, _, ok, err = Create(path, 8192)
	require.NoError(err)
	require.False(ok)
}

func TestAttachMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Attach(filepath.Join(dir, "nope"), 4096)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttachSizeMismatch(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "region")

	r1, _, ok, err := Create(path, 4096)
	require.NoError(err)
	require.True(ok)
	require.NoError(r1.Close())

	_, err = Attach(path, 8192)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestAttachZeroSizeSkipsCheck(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "region")

	r1, _, ok, err := Create(path, 4096)
	require.NoError(err)
	require.True(ok)
	require.NoError(r1.Close())

	r2, err := Attach(path, 0)
	require.NoError(err)
	require.Len(r2.Data, 4096)
	require.NoError(r2.Close())
}
