package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// validIDPattern matches match IDs and source names (alphanumerics, dots, hyphens, underscores).
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateURL checks that a URL is well-formed, uses HTTP(S) and names a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("only HTTP(S) URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateID checks that a match ID or source name contains only safe characters.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if len(id) > 256 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !validIDPattern.MatchString(id) {
		return fmt.Errorf("ID contains invalid characters: %q", id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("ID contains path traversal: %q", id)
	}
	return nil
}

// filenameReplacer strips separators and characters that are invalid on common filesystems.
var filenameReplacer = strings.NewReplacer(
	"..", "_",
	"/", "_",
	"\\", "_",
	"\x00", "",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeFilename reduces name to a single safe path element.
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(filepath.Base(strings.TrimSpace(name)))
	if name == "" || name == "." || name == "_" {
		return "untitled"
	}
	return name
}

// SafeOutputPath joins a sanitized filename onto dir and verifies the result stays inside dir.
func SafeOutputPath(dir, filename string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	full := filepath.Join(absDir, SanitizeFilename(filename))
	if !strings.HasPrefix(full, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", full, absDir)
	}
	return full, nil
}

// ExpandTemplate fills {source} and {id} placeholders in a provider endpoint template,
// path-escaping each value.
func ExpandTemplate(template, source, id string) string {
	r := strings.NewReplacer(
		"{source}", url.PathEscape(source),
		"{id}", url.PathEscape(id),
	)
	return r.Replace(template)
}

// JoinBase appends an endpoint path to a base URL without doubling slashes.
func JoinBase(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
