package crawler

import (
	"net/http"
	"strings"
	"testing"
)

func parse(t *testing.T, base, doc string) *ParseResult {
	t.Helper()
	parser, err := NewParser(base)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	result, err := parser.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return result
}

func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("extracts title and visible text", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://app.test/", `<html><head><title>Orders</title>
			<script>var hidden = "x";</script><style>p{}</style></head>
			<body><h1>Your   orders</h1><p>None yet</p></body></html>`)

		if result.Title != "Orders" {
			t.Errorf("expected title 'Orders', got %q", result.Title)
		}
		if result.Text != "Orders Your orders None yet" {
			t.Errorf("unexpected text %q", result.Text)
		}
	})

	t.Run("keeps same host links only", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://app.test/posts/", `<html><body>
			<a href="1">First post</a>
			<a href="/posts/1#comments">Same post</a>
			<a href="http://other.test/x">Elsewhere</a>
			<a href="mailto:a@b.c">Mail</a>
			<a href="javascript:void(0)">Script</a>
			<a href="#top">Top</a>
		</body></html>`)

		if len(result.Links) != 1 || result.Links[0] != "http://app.test/posts/1" {
			t.Fatalf("expected one deduplicated link, got %v", result.Links)
		}
		if result.LinkLabels["http://app.test/posts/1"] != "First post" {
			t.Errorf("unexpected label %q", result.LinkLabels["http://app.test/posts/1"])
		}
	})

	t.Run("extracts forms with labels and submit text", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://app.test/posts/new", `<html><body>
			<form action="/posts" method="post">
				<label for="title">Title</label>
				<input id="title" name="title">
				<textarea name="body" placeholder="Write something"></textarea>
				<select name="category"><option value="news">News</option></select>
				<input type="hidden" name="csrf" value="token123">
				<button type="submit">Create post</button>
			</form>
		</body></html>`)

		if len(result.Forms) != 1 {
			t.Fatalf("expected 1 form, got %d", len(result.Forms))
		}
		form := result.Forms[0]
		if form.Method != http.MethodPost {
			t.Errorf("expected method POST, got %q", form.Method)
		}
		if form.Action != "http://app.test/posts" {
			t.Errorf("unexpected action %q", form.Action)
		}
		if form.Submit != "Create post" {
			t.Errorf("expected submit label 'Create post', got %q", form.Submit)
		}
		if len(form.Fields) != 4 {
			t.Fatalf("expected 4 fields, got %d: %+v", len(form.Fields), form.Fields)
		}
		want := map[string][2]string{
			"title":    {"text", "Title"},
			"body":     {"textarea", "Write something"},
			"category": {"select", ""},
			"csrf":     {"hidden", ""},
		}
		for _, f := range form.Fields {
			w, ok := want[f.Name]
			if !ok {
				t.Errorf("unexpected field %q", f.Name)
				continue
			}
			if f.Type != w[0] || f.Label != w[1] {
				t.Errorf("field %q: got type %q label %q, want %q %q", f.Name, f.Type, f.Label, w[0], w[1])
			}
		}
		if form.Fields[2].Value != "news" {
			t.Errorf("expected first option as select value, got %q", form.Fields[2].Value)
		}
	})

	t.Run("form without action submits to page", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://app.test/search#top", `<form><input name="q"><input type="submit" value="Search"></form>`)
		if len(result.Forms) != 1 {
			t.Fatalf("expected 1 form, got %d", len(result.Forms))
		}
		if result.Forms[0].Action != "http://app.test/search" || result.Forms[0].Method != "GET" {
			t.Errorf("unexpected form %+v", result.Forms[0])
		}
		if result.Forms[0].Submit != "Search" {
			t.Errorf("expected submit 'Search', got %q", result.Forms[0].Submit)
		}
	})

	t.Run("extracts iframes and events", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://app.test/", `<html><body>
			<iframe src="/widget"></iframe>
			<iframe src="http://ads.test/banner"></iframe>
			<button id="remove" onclick="removeItem(1)">Remove</button>
			<div class="menu toggle" onchange="x()">Menu</div>
		</body></html>`)

		if len(result.Iframes) != 1 || result.Iframes[0] != "http://app.test/widget" {
			t.Errorf("unexpected iframes %v", result.Iframes)
		}
		if len(result.Events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(result.Events))
		}
		if result.Events[0] != (Event{Selector: "button#remove", Handler: "onclick", Label: "Remove"}) {
			t.Errorf("unexpected event %+v", result.Events[0])
		}
		if result.Events[1].Selector != "div.menu" {
			t.Errorf("unexpected selector %q", result.Events[1].Selector)
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		t.Parallel()

		if _, err := NewParser("://bad"); err == nil {
			t.Error("expected error for invalid base URL")
		}
	})
}
