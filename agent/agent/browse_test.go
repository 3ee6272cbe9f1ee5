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

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("data"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))

	items, err := ListDirectory(dir, []string{dir})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byName := map[string]protocol.BrowseItem{}
	for _, item := range items {
		byName[item.Name] = item
	}
	assert.False(t, byName["b.txt"].IsDir)
	assert.Equal(t, int64(4), byName["b.txt"].SizeBytes)
	assert.True(t, byName["sub"].IsDir)
}

func TestListDirectoryOutsideRoots(t *testing.T) {
	dir := t.TempDir()

	_, err := ListDirectory("/etc", []string{dir})
	assert.Error(t, err)

	_, err = ListDirectory(filepath.Join(dir, "..", ".."), []string{dir})
	assert.Error(t, err)
}

func TestListDirectoryMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ListDirectory(filepath.Join(dir, "nope"), []string{dir})
	assert.Error(t, err)
}

type fakeBrowseClient struct {
	pending []protocol.PendingBrowse
	results []protocol.BrowseResult
}

func (f *fakeBrowseClient) GetPendingBrowse(ctx context.Context, deviceID string) ([]protocol.PendingBrowse, error) {
	return f.pending, nil
}

func (f *fakeBrowseClient) PostBrowseResult(ctx context.Context, result *protocol.BrowseResult) error {
	f.results = append(f.results, *result)
	return nil
}

func TestHandleBrowseRequests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("x"), 0644))

	client := &fakeBrowseClient{
		pending: []protocol.PendingBrowse{
			{RequestID: "req-1", Path: dir},
			{RequestID: "req-2", Path: "/etc"},
		},
	}

	HandleBrowseRequests(context.Background(), client, "dev-1", []string{dir})

	require.Len(t, client.results, 2)

	ok := client.results[0]
	assert.Equal(t, "req-1", ok.RequestID)
	assert.Empty(t, ok.Error)
	require.Len(t, ok.Items, 1)
	assert.Equal(t, "doc.txt", ok.Items[0].Name)

	rejected := client.results[1]
	assert.Equal(t, "req-2", rejected.RequestID)
	assert.NotEmpty(t, rejected.Error, "out-of-root path resolves with an error, not silence")
	assert.Empty(t, rejected.Items)
}
