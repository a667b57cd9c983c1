package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

func TestWriterLock_LockUnlock(t *testing.T) {
	lock := NewWriterLock(t.TempDir())

	require.NoError(t, lock.Lock())
	assert.True(t, lock.IsLocked())

	_, err := os.Stat(lock.Path())
	assert.NoError(t, err, "lock file should exist")

	require.NoError(t, lock.Unlock())
	assert.False(t, lock.IsLocked())
	assert.NoError(t, lock.Unlock(), "double unlock is a no-op")
}

func TestWriterLock_TryLockHeldElsewhere(t *testing.T) {
	// Given: one handle holding the lock
	dir := t.TempDir()
	first := NewWriterLock(dir)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	// When: a second handle tries
	second := NewWriterLock(dir)
	err := second.TryLock()

	// Then: it reports the index as locked
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeIndexLocked))
	assert.True(t, errors.IsRetryable(err))
	assert.False(t, second.IsLocked())
}

func TestWriterLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := NewWriterLock(dir)
	require.NoError(t, first.Lock())
	require.NoError(t, first.Unlock())

	second := NewWriterLock(dir)
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}
