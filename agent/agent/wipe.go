package agent

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lockwatch/common/protocol"
)

// wipeReporter is the slice of ServerClient the executor needs,
// narrowed for testing
type wipeReporter interface {
	UpdateWipeStatus(ctx context.Context, update *protocol.WipeStatusUpdate) error
}

// WipeExecutor performs remote deletions. Every server-requested path
// is re-validated against the locally held approved set before any
// file is touched; the server's request is untrusted input.
type WipeExecutor struct {
	reporter    wipeReporter
	reportEvery int
}

// NewWipeExecutor creates an executor reporting progress through the
// given client. reportEvery controls how many deletions happen between
// progress uploads.
func NewWipeExecutor(reporter wipeReporter, reportEvery int) *WipeExecutor {
	if reportEvery <= 0 {
		reportEvery = 25
	}
	return &WipeExecutor{reporter: reporter, reportEvery: reportEvery}
}

// Execute runs one wipe operation to a terminal status. Deletion is
// irreversible: files already removed stay removed even when the
// operation ends failed. Rejected paths are skipped loudly, recorded
// in the operation's error message; the valid remainder still runs.
func (e *WipeExecutor) Execute(ctx context.Context, op *protocol.WipeOperationSnapshot, approvedFolders []string) {
	validator := NewPathValidator(approvedFolders)
	valid, rejections := validator.Partition(op.RequestedPaths)

	var notes []string
	for _, r := range rejections {
		logWarn("Rejected wipe path", "operation_id", op.OperationID, "reason", r)
		notes = append(notes, "rejected: "+r)
	}

	if len(valid) == 0 {
		e.report(ctx, op.OperationID, protocol.WipeFailed, 0, 0,
			"no requested path passed validation; "+strings.Join(rejections, "; "))
		return
	}

	files, dirs, collectErrs := collectWipeTargets(valid)
	notes = append(notes, collectErrs...)

	total := len(files)
	e.report(ctx, op.OperationID, protocol.WipeInProgress, total, 0, joinNotes(notes))
	logInfo("Starting wipe", "operation_id", op.OperationID, "total_files", total, "rejected_paths", len(rejections))

	deleted := 0
	var deleteErrs []string
	for _, file := range files {
		if ctx.Err() != nil {
			// Shutdown mid-wipe: mark failed with the partial count,
			// a new owner trigger starts over
			e.report(context.Background(), op.OperationID, protocol.WipeFailed, total, deleted,
				joinNotes(append(notes, "agent interrupted: "+ctx.Err().Error())))
			return
		}

		if err := os.Remove(file); err != nil {
			deleteErrs = append(deleteErrs, fmt.Sprintf("%s: %v", file, err))
			logWarn("Failed to delete file", "operation_id", op.OperationID, "path", file, "error", err)
			continue
		}
		deleted++

		if deleted%e.reportEvery == 0 {
			e.report(ctx, op.OperationID, protocol.WipeInProgress, total, deleted, joinNotes(notes))
		}
	}

	// Remove the emptied directory skeleton, deepest first. Non-empty
	// directories (files we failed to delete) are left in place.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		os.Remove(dir)
	}

	notes = append(notes, deleteErrs...)
	if len(deleteErrs) > 0 || len(collectErrs) > 0 {
		e.report(ctx, op.OperationID, protocol.WipeFailed, total, deleted, joinNotes(notes))
		return
	}
	e.report(ctx, op.OperationID, protocol.WipeCompleted, total, deleted, joinNotes(notes))
	logInfo("Wipe completed", "operation_id", op.OperationID, "files_deleted", deleted)
}

func (e *WipeExecutor) report(ctx context.Context, operationID, status string, total, deleted int, errMsg string) {
	update := &protocol.WipeStatusUpdate{
		OperationID:  operationID,
		Status:       status,
		TotalFiles:   total,
		FilesDeleted: deleted,
		ErrorMessage: errMsg,
	}
	if err := e.reporter.UpdateWipeStatus(ctx, update); err != nil {
		logWarn("Failed to report wipe status", "operation_id", operationID, "status", status, "error", err)
	}
}

// collectWipeTargets walks the accepted paths and returns every file
// to delete plus the directories beneath them. Paths that vanished or
// cannot be walked are reported as notes, not fatal errors.
func collectWipeTargets(paths []string) (files, dirs []string, notes []string) {
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", root, err))
			continue
		}

		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				notes = append(notes, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			if d.IsDir() {
				dirs = append(dirs, path)
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", root, err))
		}
	}
	return files, dirs, notes
}

func joinNotes(notes []string) string {
	return strings.Join(notes, "; ")
}
