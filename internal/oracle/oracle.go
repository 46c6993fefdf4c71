package oracle

import (
	"context"

	"github.com/nao1215/crudcrawl/internal/model"
)

// Action describes an action to the oracle.
type Action struct {
	// Kind is the action kind.
	Kind model.ActionKind `json:"kind"`

	// Target is the link URL, form action or event selector.
	Target string `json:"target"`

	// Form is set for form submissions.
	Form *model.Form `json:"form,omitempty"`

	// Context is the page text surrounding the action.
	Context string `json:"context,omitempty"`
}

// Execution describes an executed action to the Verifier.
type Execution struct {
	// Action is the executed action.
	Action Action

	// Predicted is the classification made before execution.
	Predicted model.ResourceOperation

	// StatusCode is the HTTP status of the response, or 0.
	StatusCode int

	// Before and After are the page snapshots around the action.
	Before string
	After  string
}

// Classifier predicts the resource operation of an action before it runs.
// An empty result means the action could not be classified.
type Classifier interface {
	Classify(ctx context.Context, action Action) (model.ResourceOperation, error)
}

// Verifier classifies an action after it ran and reports success.
type Verifier interface {
	Verify(ctx context.Context, exec Execution) (model.ResourceOperation, error)
}

// DependencyInferer decides whether parent is a parent resource of child.
// The context slices hold descriptions of actions on each resource.
type DependencyInferer interface {
	InferDependency(ctx context.Context, parent string, parentContext []string, child string, childContext []string) (bool, error)
}

// Oracle bundles the three questions.
type Oracle interface {
	Classifier
	Verifier
	DependencyInferer
}

// Describe renders an action as a single line for prompts and logs.
func (a Action) Describe() string {
	s := string(a.Kind) + " " + a.Target
	if a.Form != nil && a.Form.Submit != "" {
		s += " [" + a.Form.Submit + "]"
	}
	return s
}
