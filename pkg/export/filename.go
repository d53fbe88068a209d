package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MaxContentBytes caps exported document content.
const MaxContentBytes = 2 << 20

const maxNameLen = 120

func allowedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == ' ':
		return true
	}
	return false
}

// Sanitize reduces a name to the allowed charset, scrubs parent-directory
// sequences, and caps the length.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if allowedRune(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, ". ")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	return s
}

// BuildFilename derives a timestamped artifact name from a title.
func BuildFilename(title, ext string) string {
	base := Sanitize(title)
	base = strings.TrimSuffix(base, "."+ext)
	if base == "" {
		base = "document"
	}
	ts := time.Now().Format("2006-01-02_150405")
	name := fmt.Sprintf("%s_%s.%s", base, ts, ext)
	if len(name) > maxNameLen {
		keep := maxNameLen - len(name) + len(base)
		name = fmt.Sprintf("%s_%s.%s", base[:keep], ts, ext)
	}
	return name
}

// ValidFilename reports whether a client-supplied name is safe to serve
// from the export directory.
func ValidFilename(name string) bool {
	if name == "" || len(name) > maxNameLen {
		return false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return false
	}
	for _, r := range name {
		if !allowedRune(r) {
			return false
		}
	}
	return true
}

// SafeJoin joins dir and name, refusing any result that escapes dir.
func SafeJoin(dir, name string) (string, error) {
	if !ValidFilename(name) {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	path := filepath.Join(dir, name)
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if absPath != absDir && !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes export directory", name)
	}
	return absPath, nil
}
