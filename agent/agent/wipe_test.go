package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockwatch/common/protocol"
)

type recordingReporter struct {
	updates []protocol.WipeStatusUpdate
}

func (r *recordingReporter) UpdateWipeStatus(ctx context.Context, update *protocol.WipeStatusUpdate) error {
	r.updates = append(r.updates, *update)
	return nil
}

func (r *recordingReporter) last(t *testing.T) protocol.WipeStatusUpdate {
	t.Helper()
	require.NotEmpty(t, r.updates)
	return r.updates[len(r.updates)-1]
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func TestWipeDeletesApprovedTree(t *testing.T) {
	secrets := filepath.Join(t.TempDir(), "secrets")
	require.NoError(t, os.MkdirAll(secrets, 0755))
	writeFiles(t, secrets, "a.txt", "b.txt", "sub/c.txt")

	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 25)

	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID:    "op-1",
		RequestedPaths: []string{secrets},
	}, []string{secrets})

	last := reporter.last(t)
	assert.Equal(t, protocol.WipeCompleted, last.Status)
	assert.Equal(t, 3, last.TotalFiles)
	assert.Equal(t, 3, last.FilesDeleted)
	assert.Empty(t, last.ErrorMessage)

	_, err := os.Stat(secrets)
	assert.True(t, os.IsNotExist(err), "emptied directory skeleton is removed")
}

func TestWipeSkipsUnapprovedPathLoudly(t *testing.T) {
	base := t.TempDir()
	secrets := filepath.Join(base, "secrets")
	other := filepath.Join(base, "other")
	require.NoError(t, os.MkdirAll(secrets, 0755))
	require.NoError(t, os.MkdirAll(other, 0755))
	writeFiles(t, secrets, "a.txt", "b.txt")
	writeFiles(t, other, "keep.txt")

	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 25)

	// Server requests one approved and one unapproved path
	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID:    "op-1",
		RequestedPaths: []string{secrets, other},
	}, []string{secrets})

	last := reporter.last(t)
	assert.Equal(t, protocol.WipeCompleted, last.Status)
	assert.Equal(t, 2, last.FilesDeleted)
	assert.Contains(t, last.ErrorMessage, "rejected", "skipped path is recorded, not silent")
	assert.Contains(t, last.ErrorMessage, other)

	// The unapproved path is untouched
	_, err := os.Stat(filepath.Join(other, "keep.txt"))
	assert.NoError(t, err)
}

func TestWipeFailsWhenNothingValid(t *testing.T) {
	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 25)

	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID:    "op-1",
		RequestedPaths: []string{"/etc", "/not/approved"},
	}, []string{filepath.Join(t.TempDir(), "secrets")})

	last := reporter.last(t)
	assert.Equal(t, protocol.WipeFailed, last.Status)
	assert.Zero(t, last.FilesDeleted)
	assert.Contains(t, last.ErrorMessage, "no requested path passed validation")
}

func TestWipeMaliciousServerPathsNeverEscapeAllowlist(t *testing.T) {
	base := t.TempDir()
	secrets := filepath.Join(base, "secrets")
	victim := filepath.Join(base, "victim")
	require.NoError(t, os.MkdirAll(secrets, 0755))
	require.NoError(t, os.MkdirAll(victim, 0755))
	writeFiles(t, victim, "precious.txt")

	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 25)

	// Hostile path list: traversal, siblings, system paths
	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID: "op-1",
		RequestedPaths: []string{
			filepath.Join(secrets, "..", "victim"),
			victim,
			"/etc/passwd",
			"/",
		},
	}, []string{secrets})

	last := reporter.last(t)
	assert.Equal(t, protocol.WipeFailed, last.Status)

	_, err := os.Stat(filepath.Join(victim, "precious.txt"))
	assert.NoError(t, err, "file outside the allowlist survives every hostile path")
}

func TestWipeReportsIncrementalProgress(t *testing.T) {
	secrets := filepath.Join(t.TempDir(), "secrets")
	require.NoError(t, os.MkdirAll(secrets, 0755))
	for i := 0; i < 10; i++ {
		writeFiles(t, secrets, filepath.Join("files", string(rune('a'+i))+".txt"))
	}

	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 3)

	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID:    "op-1",
		RequestedPaths: []string{secrets},
	}, []string{secrets})

	// in_progress(0), then every 3 deletions, then completed
	require.GreaterOrEqual(t, len(reporter.updates), 4)
	assert.Equal(t, protocol.WipeInProgress, reporter.updates[0].Status)
	assert.Equal(t, 10, reporter.updates[0].TotalFiles)

	var sawPartial bool
	for _, u := range reporter.updates[1 : len(reporter.updates)-1] {
		if u.Status == protocol.WipeInProgress && u.FilesDeleted > 0 && u.FilesDeleted < 10 {
			sawPartial = true
		}
	}
	assert.True(t, sawPartial, "progress reported between start and completion")
	assert.Equal(t, protocol.WipeCompleted, reporter.last(t).Status)
	assert.Equal(t, 10, reporter.last(t).FilesDeleted)
}

func TestWipeVanishedPathEndsFailedWithPartialWork(t *testing.T) {
	base := t.TempDir()
	secrets := filepath.Join(base, "secrets")
	require.NoError(t, os.MkdirAll(secrets, 0755))
	writeFiles(t, secrets, "a.txt")
	gone := filepath.Join(secrets, "nonexistent")

	reporter := &recordingReporter{}
	executor := NewWipeExecutor(reporter, 25)

	executor.Execute(context.Background(), &protocol.WipeOperationSnapshot{
		OperationID:    "op-1",
		RequestedPaths: []string{filepath.Join(secrets, "a.txt"), gone},
	}, []string{secrets})

	last := reporter.last(t)
	assert.Equal(t, protocol.WipeFailed, last.Status)
	assert.Equal(t, 1, last.FilesDeleted, "files already deleted are not rolled back")
	assert.Contains(t, last.ErrorMessage, "nonexistent")
}
