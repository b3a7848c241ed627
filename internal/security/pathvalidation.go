// Package security validates operator-supplied file paths and names before
// anything is written to disk. Export targets arrive on command line flags
// and run names travel through the HTTP API, so all input here is treated
// as untrusted.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory returns an error unless filePath, after
// cleaning and symlink resolution, stays inside safeDir. Symlinks are
// resolved on both sides so a link planted inside safeDir cannot redirect
// a write elsewhere.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}

	canonicalPath, err := canonicalize(absPath)
	if err != nil {
		return err
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. EvalSymlinks fails on paths
// that do not exist yet, which is the normal case for an export target, so
// for a missing path the nearest existing ancestor is resolved instead and
// the remaining components are re-joined onto its real location. Without
// this a symlinked parent directory would be judged by its link name rather
// than where it points.
func canonicalize(absPath string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}
	checkPath := absPath
	for {
		parentDir := filepath.Dir(checkPath)
		if parentDir == checkPath {
			// Walked to the root without finding an existing directory.
			return absPath, nil
		}
		if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
			relToParent, relErr := filepath.Rel(parentDir, absPath)
			if relErr != nil {
				return "", fmt.Errorf("resolve path against parent: %w", relErr)
			}
			return filepath.Join(resolved, relToParent), nil
		}
		checkPath = parentDir
	}
}

// ValidatePathWithinAllowedDirs accepts filePath if it validates against at
// least one of allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateExportPath guards paths the operator names for trace and plan
// exports. Writes are confined to the temp directory and the current
// working directory.
func ValidateExportPath(filePath string) error {
	tempDir := os.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	return ValidatePathWithinAllowedDirs(filePath, []string{tempDir, cwd})
}

// SanitizeFilename reduces an arbitrary run name to something safe to embed
// in a file or directory name. Anything outside ASCII letters, digits, dot,
// underscore and dash becomes a single underscore, consecutive replacements
// collapse, and the result is capped at 128 bytes. Input with no usable
// characters comes back as "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	replaced := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		if safeFilenameRune(r) {
			b.WriteRune(r)
			replaced = false
			continue
		}
		if !replaced {
			b.WriteByte('_')
			replaced = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

func safeFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}
