package httputil

import (
	"path/filepath"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid HTTPS", "https://example.com/path", false},
		{"valid HTTP", "http://example.com/path", false},
		{"javascript scheme rejected", "javascript:alert(1)", true},
		{"data scheme rejected", "data:text/html,<h1>Hi</h1>", true},
		{"FTP rejected", "ftp://example.com/file", true},
		{"empty string", "", true},
		{"no host", "https://", true},
		{"relative path", "/embed/123", true},
		{"valid with port", "https://example.com:8080/path", false},
		{"valid with query", "https://example.com/path?q=test&a=b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"slug match ID", "arsenal-vs-chelsea-1234", false},
		{"numeric", "12345", false},
		{"source name", "alpha", false},
		{"dotted", "match.v2", false},
		{"empty", "", true},
		{"path traversal dots", "../../etc/passwd", true},
		{"slash", "alpha/1", true},
		{"shell injection semicolon", "123; rm -rf /", true},
		{"newline injection", "123\n456", true},
		{"query injection", "123?x=1", true},
		{"too long", string(make([]byte, 300)), true},
		{"spaces", "match id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		template string
		expected string
	}{
		{"/api/stream/{source}/{id}", "/api/stream/alpha/abc-1"},
		{"/stream?src={source}&id={id}", "/stream?src=alpha&id=abc-1"},
		{"/static", "/static"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got := ExpandTemplate(tt.template, "alpha", "abc-1")
			if got != tt.expected {
				t.Errorf("ExpandTemplate(%q) = %q, want %q", tt.template, got, tt.expected)
			}
		})
	}
}

func TestJoinBase(t *testing.T) {
	tests := []struct {
		base, path, expected string
	}{
		{"https://api.example", "/api/x", "https://api.example/api/x"},
		{"https://api.example/", "/api/x", "https://api.example/api/x"},
		{"https://api.example/v1", "api/x", "https://api.example/v1/api/x"},
	}

	for _, tt := range tests {
		t.Run(tt.base+tt.path, func(t *testing.T) {
			if got := JoinBase(tt.base, tt.path); got != tt.expected {
				t.Errorf("JoinBase(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"Arsenal vs Chelsea.ts", "Arsenal vs Chelsea.ts"},
		{"../../etc/passwd", "passwd"},
		{"half: 1*2?", "half_ 1_2_"},
		{"..", "untitled"},
		{"", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSafeOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := SafeOutputPath(dir, "match.ts")
	if err != nil {
		t.Fatalf("SafeOutputPath() error: %v", err)
	}
	if got != filepath.Join(dir, "match.ts") {
		t.Errorf("SafeOutputPath() = %q", got)
	}

	got, err = SafeOutputPath(dir, "../escape.ts")
	if err != nil {
		t.Fatalf("SafeOutputPath() error: %v", err)
	}
	if filepath.Dir(got) != dir {
		t.Errorf("SafeOutputPath() left the directory: %q", got)
	}
}
