package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/crudcrawl/internal/model"
)

// ErrUnsupportedAction is returned for actions an executor cannot perform,
// such as script events without a browser.
var ErrUnsupportedAction = errors.New("unsupported action")

// maxContext bounds the page text attached to each discovered action.
const maxContext = 2048

// Discovered is an action found on the page an execution led to.
type Discovered struct {
	Kind    model.ActionKind
	Target  string
	Form    *model.Form
	Context string
}

// Outcome is the result of executing one edge.
type Outcome struct {
	// Request is the page state reached, after redirects.
	Request model.Request

	// Page is the fetched page.
	Page *model.Page

	// Actions are the actions the page offers.
	Actions []Discovered
}

// Executor performs the action of an edge.
type Executor interface {
	Execute(ctx context.Context, edge *model.Edge) (*Outcome, error)
}

// HTTPExecutor performs link and form actions with plain HTTP requests.
type HTTPExecutor struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	delay       time.Duration
	scope       Scope
}

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.userAgent = ua
	}
}

// WithMaxBodySize limits how much of a response body is read.
func WithMaxBodySize(size int64) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.maxBodySize = size
	}
}

// WithDelay waits before every request.
func WithDelay(d time.Duration) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.delay = d
	}
}

// WithScope restricts the discovered links and forms.
func WithScope(s Scope) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.scope = s
	}
}

// NewHTTPExecutor creates an executor around client.
func NewHTTPExecutor(client *http.Client, opts ...ExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		client:      client,
		userAgent:   "crudcrawl/1.0",
		maxBodySize: 5 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, edge *model.Edge) (*Outcome, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}

	var (
		req *http.Request
		err error
	)
	switch edge.Kind {
	case model.ActionGet, model.ActionIframe:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, edge.Target, nil)
	case model.ActionForm, model.ActionUIForm:
		if edge.Form == nil {
			return nil, fmt.Errorf("%w: form edge without form", ErrUnsupportedAction)
		}
		req, err = newFormRequest(ctx, edge.Form)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, edge.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", edge.Kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	finalURL := resp.Request.URL.String()
	page := &model.Page{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
	}
	page.ComputeHash(body)

	method := edge.Kind
	// A redirect lands on a plain page.
	if finalURL != req.URL.String() {
		method = model.ActionGet
	}
	outcome := &Outcome{
		Request: model.Request{URL: finalURL, Method: method},
		Page:    page,
	}

	if !page.IsHTML() {
		page.Snapshot = string(body)
		page.TruncateSnapshot()
		return outcome, nil
	}

	parser, err := NewParser(finalURL)
	if err != nil {
		return outcome, nil //nolint:nilerr // the page itself was fetched
	}
	result, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return outcome, nil //nolint:nilerr // unparsable pages offer no actions
	}

	page.Title = result.Title
	page.Snapshot = result.Text
	page.TruncateSnapshot()
	page.Iframes = result.Iframes
	page.Forms = result.Forms
	outcome.Actions = e.discover(result)
	for _, a := range outcome.Actions {
		if a.Kind == model.ActionGet {
			page.Links = append(page.Links, a.Target)
		}
	}
	return outcome, nil
}

func (e *HTTPExecutor) discover(result *ParseResult) []Discovered {
	pageContext := result.Title
	if pageContext != "" {
		pageContext = "Page: " + pageContext + "\n"
	}
	pageContext += truncateText(result.Text, maxContext)

	var out []Discovered
	for _, link := range result.Links {
		if !e.scope.Allows(link) {
			continue
		}
		out = append(out, Discovered{
			Kind:    model.ActionGet,
			Target:  link,
			Context: "Link text: " + result.LinkLabels[link] + "\n" + pageContext,
		})
	}
	for _, src := range result.Iframes {
		if !e.scope.Allows(src) {
			continue
		}
		out = append(out, Discovered{Kind: model.ActionIframe, Target: src, Context: pageContext})
	}
	for i := range result.Forms {
		form := result.Forms[i]
		if !e.scope.Allows(form.Action) {
			continue
		}
		out = append(out, Discovered{
			Kind:    model.ActionForm,
			Target:  form.Action,
			Form:    &form,
			Context: "Submit button: " + form.Submit + "\n" + pageContext,
		})
	}
	for _, ev := range result.Events {
		out = append(out, Discovered{
			Kind:    model.ActionEvent,
			Target:  ev.Selector + "@" + ev.Handler,
			Context: "Element text: " + ev.Label + "\n" + pageContext,
		})
	}
	return out
}

// newFormRequest fills and submits form.
func newFormRequest(ctx context.Context, form *model.Form) (*http.Request, error) {
	values := url.Values{}
	for _, f := range form.Fields {
		values.Set(f.Name, fillValue(f))
	}

	if strings.EqualFold(form.Method, http.MethodGet) {
		u, err := url.Parse(form.Action)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, v := range values {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.Action, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// fillValue returns a plausible value for an input. Preset values (hidden
// tokens, selected options) are kept.
func fillValue(f model.FormField) string {
	if f.Value != "" {
		return f.Value
	}
	switch f.Type {
	case "email":
		return "crawler@example.com"
	case "password":
		return "Crudcrawl-Passw0rd"
	case "number", "range":
		return "1"
	case "tel":
		return "5550100"
	case "url":
		return "https://example.com"
	case "date":
		return "2024-01-01"
	case "checkbox", "radio":
		return "on"
	default:
		return "crudcrawl"
	}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
