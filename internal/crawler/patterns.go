package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Scope decides which discovered URLs become actions. Ignore patterns win
// over follow patterns; with no follow patterns every path is followed.
type Scope struct {
	Ignore []string
	Follow []string
}

// Allows reports whether targetURL may be crawled.
func (s Scope) Allows(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.Ignore {
		if matchPattern(pattern, path) {
			return false
		}
	}
	if len(s.Follow) == 0 {
		return true
	}
	for _, pattern := range s.Follow {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern matches path against a glob. "/admin/*" also matches
// deeper paths and "*.pdf" matches by extension.
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
