// Package security keeps file lookups driven by request data inside their
// configured directories.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path resolves outside its root.
var ErrOutsideDirectory = errors.New("path escapes directory")

// canonical resolves symlinks in p. When p does not exist the nearest
// existing ancestor is resolved instead and the remainder re-appended, so a
// symlinked parent cannot smuggle a new file elsewhere.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rel)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return p
		}
	}
}

// ValidatePathWithinDirectory reports an error wrapping ErrOutsideDirectory
// when filePath, after cleaning and symlink resolution, is not inside root.
// root must exist.
func ValidatePathWithinDirectory(filePath, root string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve root symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonRoot, canonical(absPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutsideDirectory, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s not under %s", ErrOutsideDirectory, filePath, root)
	}
	return nil
}

// ResolveWithin joins name (relative, slash separated) onto root and
// validates the result. It returns the joined path.
func ResolveWithin(root, name string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty root", ErrOutsideDirectory)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute name %q", ErrOutsideDirectory, name)
	}
	p := filepath.Join(root, filepath.FromSlash(name))
	if err := ValidatePathWithinDirectory(p, root); err != nil {
		return "", err
	}
	return p, nil
}

// maxFilenameLen bounds SanitizeFilename output.
const maxFilenameLen = 128

// SanitizeFilename maps an identifier onto a safe file stem: ASCII letters,
// digits, '.', '_' and '-' pass through, every other run of characters
// becomes a single '_'. Leading and trailing '.' and '_' are trimmed, so
// "." and ".." cannot survive. Empty results become "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !safe {
			pendingUnderscore = true
			continue
		}
		if pendingUnderscore {
			b.WriteByte('_')
			pendingUnderscore = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
