package model

import (
	"net/url"
	"slices"
	"strings"
)

// ActionKind is the kind of browser-level action an edge performs.
type ActionKind string

const (
	// ActionGet follows a link.
	ActionGet ActionKind = "get"

	// ActionForm submits an HTML form.
	ActionForm ActionKind = "form"

	// ActionEvent fires a DOM event handler.
	ActionEvent ActionKind = "event"

	// ActionIframe enters an iframe.
	ActionIframe ActionKind = "iframe"

	// ActionUIForm submits a script-driven form without a <form> element.
	ActionUIForm ActionKind = "ui_form"
)

// RootURL is the URL of the synthetic request every crawl starts from.
const RootURL = "ROOTREQ"

// Request is a node of the action graph: a page state reached by an action.
type Request struct {
	// URL is the page URL.
	URL string `json:"url"`

	// Method is the kind of action that produced the request.
	Method ActionKind `json:"method"`
}

// Key returns the identity of the request. GET requests to equivalent URLs
// share a key.
func (r Request) Key() string {
	if r.Method == ActionGet {
		return string(r.Method) + " " + CanonicalURL(r.URL)
	}
	return string(r.Method) + " " + r.URL
}

func (r Request) String() string {
	return "[" + string(r.Method) + "] " + r.URL
}

// FormField is one named input of a form.
type FormField struct {
	// Name is the input's name attribute.
	Name string `json:"name"`

	// Type is the input type (text, hidden, email, submit, textarea, select).
	Type string `json:"type"`

	// Value is the value that will be submitted.
	Value string `json:"value,omitempty"`

	// Label is the accessible name shown to the user, if any.
	Label string `json:"label,omitempty"`
}

// Form is a form discovered on a page.
type Form struct {
	// Action is the absolute URL the form submits to.
	Action string `json:"action"`

	// Method is the HTTP method (GET or POST).
	Method string `json:"method"`

	// Fields are the form's inputs in document order.
	Fields []FormField `json:"fields,omitempty"`

	// Submit is the label of the submit control, e.g. "Delete".
	Submit string `json:"submit,omitempty"`
}

// Signature identifies a form by its target and the set of field names.
// Two forms with the same signature are the same action.
func (f *Form) Signature() string {
	if f == nil {
		return ""
	}
	names := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		names = append(names, field.Name)
	}
	slices.Sort(names)
	return strings.ToUpper(f.Method) + " " + CanonicalURL(f.Action) + " " + strings.Join(names, ",")
}

// CanonicalURL normalizes a URL for equivalence checks: the fragment is
// dropped, scheme and host are lower-cased, a trailing slash is removed and
// query parameters are sorted.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}
