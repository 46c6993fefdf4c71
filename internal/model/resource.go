package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CRUD types reported by the classifier.
const (
	CRUDCreate  = "create"
	CRUDRead    = "read"
	CRUDUpdate  = "update"
	CRUDDelete  = "delete"
	CRUDUnknown = "unknown"
	CRUDBlock   = "block"
)

// UnknownResource is the resource name used when the classifier could not
// tell what an action operates on.
const UnknownResource = "unknown"

var lowerCaser = cases.Lower(language.Und)

// ResourceOperation is the classification of an action: which resource it
// touches and what it does to it.
type ResourceOperation struct {
	// Resource is the noun the action operates on, e.g. "order".
	Resource string `json:"resource"`

	// Operation is a free-text verb phrase, e.g. "load create form".
	Operation string `json:"operation"`

	// CRUDType is one of the CRUD* constants.
	CRUDType string `json:"crud_type"` //nolint:tagliatelle // CRUD is an acronym

	// Success is set by post-execution classification only.
	Success *bool `json:"success,omitempty"`
}

// IsEmpty reports whether the classifier returned nothing usable.
func (r ResourceOperation) IsEmpty() bool {
	return r.Resource == "" && r.Operation == "" && r.CRUDType == ""
}

// Succeeded reports whether the classification says the action succeeded.
func (r ResourceOperation) Succeeded() bool {
	return r.Success != nil && *r.Success
}

// Normalize returns a copy with a normalized resource name and a CRUD type
// restricted to the known set. Missing fields become "unknown".
func (r ResourceOperation) Normalize() ResourceOperation {
	out := r
	out.Resource = NormalizeResource(r.Resource)
	if out.Resource == "" {
		out.Resource = UnknownResource
	}
	out.Operation = strings.TrimSpace(r.Operation)
	if out.Operation == "" {
		out.Operation = CRUDUnknown
	}
	switch crud := lowerCaser.String(strings.TrimSpace(r.CRUDType)); crud {
	case CRUDCreate, CRUDRead, CRUDUpdate, CRUDDelete, CRUDBlock:
		out.CRUDType = crud
	default:
		out.CRUDType = CRUDUnknown
	}
	return out
}

// SameAs reports whether two classifications describe the same operation,
// ignoring the success flag.
func (r ResourceOperation) SameAs(other ResourceOperation) bool {
	return r.Resource == other.Resource && r.Operation == other.Operation && r.CRUDType == other.CRUDType
}

func (r ResourceOperation) String() string {
	if r.IsEmpty() {
		return "{}"
	}
	return r.Resource + "/" + r.CRUDType + " (" + r.Operation + ")"
}

// NormalizeResource lower-cases a resource name and replaces dashes with
// spaces so that "Blog-Post" and "blog post" name the same resource.
func NormalizeResource(name string) string {
	name = lowerCaser.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
