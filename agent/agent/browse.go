package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lockwatch/common/protocol"
)

// browseClient is the slice of ServerClient the browse responder needs
type browseClient interface {
	GetPendingBrowse(ctx context.Context, deviceID string) ([]protocol.PendingBrowse, error)
	PostBrowseResult(ctx context.Context, result *protocol.BrowseResult) error
}

// BrowseRoots returns the directories an owner may browse: the
// approved folders plus the user's home directory. Listing is
// read-only, but it still leaks file names, so it gets the same
// root restriction treatment as deletion.
func BrowseRoots(approvedFolders []string) []string {
	roots := append([]string(nil), approvedFolders...)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		roots = append(roots, home)
	}
	return roots
}

// ListDirectory lists one directory, rejecting paths outside the
// allowed roots
func ListDirectory(path string, allowedRoots []string) ([]protocol.BrowseItem, error) {
	n := normalizePath(path)
	allowed := false
	for _, root := range allowedRoots {
		if isSubpath(n, normalizePath(root)) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("path %q is outside the browsable roots", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]protocol.BrowseItem, 0, len(entries))
	for _, entry := range entries {
		item := protocol.BrowseItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item.SizeBytes = info.Size()
			item.ModifiedAt = info.ModTime()
		}
		items = append(items, item)
	}
	return items, nil
}

// HandleBrowseRequests resolves any pending directory-listing requests
// for this device. Called once per poll tick.
func HandleBrowseRequests(ctx context.Context, client browseClient, deviceID string, approvedFolders []string) {
	pending, err := client.GetPendingBrowse(ctx, deviceID)
	if err != nil {
		logDebug("Failed to fetch pending browse requests", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	roots := BrowseRoots(approvedFolders)
	for _, req := range pending {
		result := &protocol.BrowseResult{
			RequestID: req.RequestID,
			DeviceID:  deviceID,
			Path:      req.Path,
		}

		items, err := ListDirectory(req.Path, roots)
		if err != nil {
			result.Error = err.Error()
			logWarn("Browse request rejected", "request_id", req.RequestID, "path", req.Path, "error", err)
		} else {
			result.Items = items
		}

		if err := client.PostBrowseResult(ctx, result); err != nil {
			logWarn("Failed to post browse result", "request_id", req.RequestID, "error", err)
		}
	}
}
