package agent

import (
	"fmt"
	"strings"
)

// criticalPrefixes are operating-system paths that are never eligible
// for deletion, even if an owner mistakenly approves them. This
// denylist backstops the allowlist; both checks must pass.
var criticalPrefixes = []string{
	// Windows
	"c:/windows",
	"c:/program files",
	"c:/program files (x86)",
	"c:/programdata",
	// macOS
	"/system",
	"/library",
	// Unix
	"/usr",
	"/bin",
	"/sbin",
	"/etc",
	"/boot",
	"/var",
}

// PathValidator enforces the wipe safety boundary on the agent. The
// server's requested paths are untrusted input: a path is accepted
// only if it is equal to or nested under a locally held approved
// folder AND not under a critical OS prefix.
type PathValidator struct {
	approved []string
}

// NewPathValidator builds a validator over the locally held approved set
func NewPathValidator(approvedFolders []string) *PathValidator {
	v := &PathValidator{}
	for _, p := range approvedFolders {
		n := normalizePath(p)
		if n != "" && n != "/" {
			v.approved = append(v.approved, n)
		}
	}
	return v
}

// Validate returns nil if the path may be wiped
func (v *PathValidator) Validate(path string) error {
	n := normalizePath(path)
	if n == "" {
		return fmt.Errorf("empty path")
	}
	if n == "/" || isWindowsDriveRoot(n) {
		return fmt.Errorf("refusing to wipe filesystem root %q", path)
	}

	for _, prefix := range criticalPrefixes {
		if isSubpath(n, prefix) {
			return fmt.Errorf("path %q is under protected system prefix %q", path, prefix)
		}
	}

	for _, folder := range v.approved {
		if isSubpath(n, folder) {
			return nil
		}
	}
	return fmt.Errorf("path %q is not within any approved folder", path)
}

// Partition splits requested paths into accepted paths and rejection
// reasons. Rejections are surfaced loudly, never silently dropped.
func (v *PathValidator) Partition(paths []string) (valid []string, rejections []string) {
	for _, p := range paths {
		if err := v.Validate(p); err != nil {
			rejections = append(rejections, err.Error())
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejections
}

// normalizePath produces a canonical comparable form: forward slashes,
// no trailing slash, lowercased for Windows-style paths.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}

	// Collapse repeated slashes and resolve . components; reject ..
	// escapes by keeping them visible to the subpath check.
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}

	joined := strings.Join(out, "/")
	if isWindowsStyle(p) {
		return strings.ToLower(joined)
	}
	return "/" + joined
}

func isWindowsStyle(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

func isWindowsDriveRoot(n string) bool {
	return len(n) == 2 && n[1] == ':'
}

// isSubpath reports whether child equals parent or sits beneath it
func isSubpath(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}
