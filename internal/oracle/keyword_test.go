package oracle

import (
	"context"
	"testing"

	"github.com/nao1215/crudcrawl/internal/model"
)

func TestKeywordClassifierClassify(t *testing.T) {
	t.Parallel()

	k := NewKeywordClassifier(nil)
	tests := []struct {
		name     string
		action   Action
		resource string
		crud     string
	}{
		{
			name:     "logout link blocks",
			action:   Action{Kind: model.ActionGet, Target: "http://app/logout"},
			resource: "logout",
			crud:     model.CRUDBlock,
		},
		{
			name:     "delete form",
			action:   Action{Kind: model.ActionForm, Target: "http://app/posts/12/delete", Form: &model.Form{Action: "http://app/posts/12/delete", Method: "POST"}},
			resource: "post",
			crud:     model.CRUDDelete,
		},
		{
			name:     "load create form",
			action:   Action{Kind: model.ActionGet, Target: "http://app/orders/new"},
			resource: "order",
			crud:     model.CRUDRead,
		},
		{
			name:     "create form",
			action:   Action{Kind: model.ActionForm, Target: "http://app/orders", Form: &model.Form{Action: "http://app/orders", Method: "POST", Submit: "Create order"}},
			resource: "order",
			crud:     model.CRUDCreate,
		},
		{
			name:     "update form",
			action:   Action{Kind: model.ActionForm, Target: "http://app/users/7/edit", Form: &model.Form{Action: "http://app/users/7/edit", Method: "POST", Submit: "Save"}},
			resource: "user",
			crud:     model.CRUDUpdate,
		},
		{
			name:     "plain link reads",
			action:   Action{Kind: model.ActionGet, Target: "http://app/comments?page=2"},
			resource: "comment",
			crud:     model.CRUDRead,
		},
		{
			name:     "root page",
			action:   Action{Kind: model.ActionGet, Target: "http://app/"},
			resource: "home",
			crud:     model.CRUDRead,
		},
		{
			name:     "search form",
			action:   Action{Kind: model.ActionForm, Target: "http://app/search", Form: &model.Form{Action: "http://app/search", Method: "GET"}},
			resource: "search",
			crud:     model.CRUDRead,
		},
		{
			name:     "address is not add",
			action:   Action{Kind: model.ActionGet, Target: "http://app/address"},
			resource: "address",
			crud:     model.CRUDRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op, err := k.Classify(context.Background(), tt.action)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if op.Resource != tt.resource {
				t.Errorf("expected resource %q, got %q", tt.resource, op.Resource)
			}
			if op.CRUDType != tt.crud {
				t.Errorf("expected CRUD type %q, got %q", tt.crud, op.CRUDType)
			}
		})
	}

	t.Run("events are not classified", func(t *testing.T) {
		t.Parallel()

		op, err := k.Classify(context.Background(), Action{Kind: model.ActionEvent, Target: "#menu"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !op.IsEmpty() {
			t.Errorf("expected empty classification, got %+v", op)
		}
	})

	t.Run("custom blocking strings", func(t *testing.T) {
		t.Parallel()

		custom := NewKeywordClassifier([]string{"Deactivate"})
		op, _ := custom.Classify(context.Background(), Action{Kind: model.ActionGet, Target: "http://app/account/deactivate"})
		if op.CRUDType != model.CRUDBlock {
			t.Errorf("expected block, got %q", op.CRUDType)
		}
		op, _ = custom.Classify(context.Background(), Action{Kind: model.ActionGet, Target: "http://app/logout"})
		if op.CRUDType == model.CRUDBlock {
			t.Error("expected default blocking strings to be replaced")
		}
	})
}

func TestKeywordClassifierVerify(t *testing.T) {
	t.Parallel()

	k := NewKeywordClassifier(nil)
	predicted := model.ResourceOperation{Resource: "order", Operation: "create", CRUDType: model.CRUDCreate}

	tests := []struct {
		name   string
		status int
		before string
		after  string
		want   bool
	}{
		{"ok", 200, "empty", "order saved", true},
		{"redirect", 302, "", "", true},
		{"server error", 500, "", "", false},
		{"error message", 200, "form", "Error: name is required", false},
		{"unchanged page", 200, "same", "same", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op, err := k.Verify(context.Background(), Execution{Predicted: predicted, StatusCode: tt.status, Before: tt.before, After: tt.after})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if op.Succeeded() != tt.want {
				t.Errorf("expected success %v, got %v", tt.want, op.Succeeded())
			}
			if !op.SameAs(predicted) {
				t.Errorf("expected prediction to be kept, got %+v", op)
			}
		})
	}
}

func TestKeywordClassifierInferDependency(t *testing.T) {
	t.Parallel()

	k := NewKeywordClassifier(nil)
	ctx := context.Background()

	related, _ := k.InferDependency(ctx, "post", nil, "comment", []string{"form http://app/posts/1/comments/new"})
	if !related {
		t.Error("expected comment to depend on post")
	}
	related, _ = k.InferDependency(ctx, "comment", nil, "post", []string{"get http://app/posts/1"})
	if related {
		t.Error("expected post not to depend on comment")
	}
	related, _ = k.InferDependency(ctx, "post", nil, "post", []string{"get http://app/posts/1"})
	if related {
		t.Error("expected no self dependency")
	}
}
