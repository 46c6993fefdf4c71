package oracle

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/crudcrawl/internal/model"
)

// DefaultBlockingStrings end the session when executed.
var DefaultBlockingStrings = []string{"logout", "log out", "signout", "sign out", "log off"}

var (
	deleteVerbs = []string{"delete", "remove", "destroy", "del", "trash", "drop"}
	createVerbs = []string{"create", "new", "add", "register", "signup", "upload"}
	updateVerbs = []string{"edit", "update", "save", "change", "rename", "modify"}
	failureText = []string{"error", "not found", "forbidden", "denied", "invalid"}
)

// KeywordClassifier is an offline Oracle that classifies actions from the
// words in their URL, form and label. It needs no network access and is
// used when no model endpoint is configured.
type KeywordClassifier struct {
	blocking []string
}

// NewKeywordClassifier creates a classifier. An empty blocking list uses
// DefaultBlockingStrings.
func NewKeywordClassifier(blocking []string) *KeywordClassifier {
	if len(blocking) == 0 {
		blocking = DefaultBlockingStrings
	}
	lowered := make([]string, 0, len(blocking))
	for _, s := range blocking {
		lowered = append(lowered, strings.ToLower(s))
	}
	return &KeywordClassifier{blocking: lowered}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, a Action) (model.ResourceOperation, error) {
	resource := resourceFromURL(a.Target)
	if a.Form != nil && resource == model.UnknownResource {
		resource = resourceFromURL(a.Form.Action)
	}

	words := strings.ToLower(a.Target)
	if a.Form != nil {
		words += " " + strings.ToLower(a.Form.Submit+" "+a.Form.Action)
	}

	op := model.ResourceOperation{Resource: resource}
	switch {
	case containsAny(words, k.blocking):
		op.Operation, op.CRUDType = "logout", model.CRUDBlock
	case containsWord(words, deleteVerbs):
		op.Operation, op.CRUDType = "delete", model.CRUDDelete
	case isLoad(a) && containsWord(words, createVerbs):
		op.Operation, op.CRUDType = "load create form", model.CRUDRead
	case isLoad(a) && containsWord(words, updateVerbs):
		op.Operation, op.CRUDType = "load update form", model.CRUDRead
	case containsWord(words, updateVerbs):
		op.Operation, op.CRUDType = "update", model.CRUDUpdate
	case containsWord(words, createVerbs):
		op.Operation, op.CRUDType = "create", model.CRUDCreate
	case isLoad(a):
		op.Operation, op.CRUDType = "view", model.CRUDRead
	case a.Form != nil && strings.EqualFold(a.Form.Method, "GET"):
		op.Operation, op.CRUDType = "search", model.CRUDRead
	case a.Form != nil:
		op.Operation, op.CRUDType = "create", model.CRUDCreate
	default:
		return model.ResourceOperation{}, nil
	}
	return op, nil
}

// Verify implements Verifier. An execution succeeds when the status is 2xx
// or 3xx and the resulting page shows no error message.
func (k *KeywordClassifier) Verify(_ context.Context, e Execution) (model.ResourceOperation, error) {
	op := e.Predicted
	ok := e.StatusCode >= 200 && e.StatusCode < 400
	if ok && e.After != e.Before {
		ok = !containsAny(strings.ToLower(e.After), failureText)
	}
	op.Success = &ok
	return op, nil
}

// InferDependency implements DependencyInferer. child depends on parent if
// the actions on child mention parent, as in /posts/1/comments/new.
func (k *KeywordClassifier) InferDependency(_ context.Context, parent string, _ []string, child string, childContext []string) (bool, error) {
	if parent == "" || parent == child {
		return false, nil
	}
	for _, c := range childContext {
		if containsWord(strings.ToLower(c), []string{parent, parent + "s"}) {
			return true, nil
		}
	}
	return false, nil
}

func isLoad(a Action) bool {
	return a.Kind == model.ActionGet || a.Kind == model.ActionIframe
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsWord matches whole words, so "address" does not match "add".
func containsWord(s string, words []string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	joined := " " + strings.Join(fields, " ") + " "
	for _, w := range words {
		if w != "" && strings.Contains(joined, " "+w+" ") {
			return true
		}
	}
	return false
}

// resourceFromURL returns the last path segment that is neither a verb nor
// an identifier, with a plural "s" removed.
func resourceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return model.UnknownResource
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.ToLower(segments[i])
		seg = strings.TrimSuffix(seg, ".php")
		seg = strings.TrimSuffix(seg, ".html")
		if seg == "" || isIdentifier(seg) || isVerb(seg) {
			continue
		}
		if len(seg) > 3 && strings.HasSuffix(seg, "s") && !strings.HasSuffix(seg, "ss") {
			seg = strings.TrimSuffix(seg, "s")
		}
		return model.NormalizeResource(strings.ReplaceAll(seg, "_", " "))
	}
	if u.Path == "" || u.Path == "/" {
		return "home"
	}
	return model.UnknownResource
}

func isIdentifier(seg string) bool {
	if _, err := strconv.Atoi(seg); err == nil {
		return true
	}
	return len(seg) >= 16 && strings.Trim(seg, "0123456789abcdef-") == ""
}

func isVerb(seg string) bool {
	for _, list := range [][]string{deleteVerbs, createVerbs, updateVerbs} {
		for _, v := range list {
			if seg == v || strings.HasPrefix(seg, v+"_") || strings.HasPrefix(seg, v+"-") {
				return true
			}
		}
	}
	return seg == "index" || seg == "view" || seg == "show"
}
