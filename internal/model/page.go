package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxSnapshotSize is the maximum size of the text snapshot kept per page.
const MaxSnapshotSize = 64 * 1024

// Page is the state of the application after an action was executed.
type Page struct {
	// URL is the final URL after redirects.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Title is the content of the <title> tag.
	Title string `json:"title,omitempty"`

	// Links are absolute same-site link targets found on the page.
	Links []string `json:"links,omitempty"`

	// Iframes are absolute iframe sources found on the page.
	Iframes []string `json:"iframes,omitempty"`

	// Forms are the forms found on the page.
	Forms []Form `json:"forms,omitempty"`

	// Snapshot is the visible text of the page, truncated to
	// MaxSnapshotSize. It is the page context handed to the classifier.
	Snapshot string `json:"snapshot,omitempty"`

	// Hash is the SHA-256 of the raw body.
	Hash string `json:"hash"`
}

// ComputeHash sets Hash from the raw body.
func (p *Page) ComputeHash(raw []byte) {
	if len(raw) == 0 {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256(raw)
	p.Hash = hex.EncodeToString(sum[:])
}

// IsHTML reports whether the content type indicates HTML.
func (p *Page) IsHTML() bool {
	return strings.HasPrefix(p.ContentType, "text/html") ||
		strings.HasPrefix(p.ContentType, "application/xhtml+xml")
}

// TruncateSnapshot enforces MaxSnapshotSize.
func (p *Page) TruncateSnapshot() {
	if len(p.Snapshot) > MaxSnapshotSize {
		p.Snapshot = p.Snapshot[:MaxSnapshotSize]
	}
}
