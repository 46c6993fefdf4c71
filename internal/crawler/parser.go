package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/crudcrawl/internal/model"
)

// HTML element name constants for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
	htmlElementButton   = "button"
)

// eventAttributes are the inline handlers turned into event actions.
var eventAttributes = []string{"onclick", "onsubmit", "onchange"}

// Parser extracts the actions a page offers: same-site links, iframes,
// forms and elements with inline event handlers.
type Parser struct {
	baseURL *url.URL
}

// Event is an element with an inline event handler.
type Event struct {
	// Selector locates the element, e.g. "button#remove" or "a.delete".
	Selector string

	// Handler is the handler attribute name, e.g. "onclick".
	Handler string

	// Label is the element's visible text.
	Label string
}

// ParseResult contains everything extracted from one page.
type ParseResult struct {
	// Title is the page title from <title> tag.
	Title string

	// Links are absolute links on the same host as the page, deduplicated.
	Links []string

	// LinkLabels maps a link to the text of its first anchor.
	LinkLabels map[string]string

	// Iframes are absolute iframe sources on the same host.
	Iframes []string

	// Forms are the page's forms with resolved actions.
	Forms []model.Form

	// Events are elements with inline event handlers.
	Events []Event

	// Text is the visible text of the page with whitespace collapsed.
	Text string
}

// NewParser creates a parser resolving relative URLs against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{LinkLabels: make(map[string]string)}
	seen := make(map[string]bool)
	var text strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "form":
				result.Forms = append(result.Forms, p.parseForm(n))
			}
			p.processElement(n, result, seen)
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	result.Text = strings.Join(strings.Fields(text.String()), " ")
	return result, nil
}

func (p *Parser) processElement(n *html.Node, result *ParseResult, seen map[string]bool) {
	switch n.Data {
	case "title":
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}
	case "a":
		if link := p.resolveURL(getAttr(n, "href")); link != "" && p.sameHost(link) {
			link = stripFragment(link)
			if !seen[link] {
				seen[link] = true
				result.Links = append(result.Links, link)
				result.LinkLabels[link] = nodeText(n)
			}
		}
	case "iframe":
		if src := p.resolveURL(getAttr(n, "src")); src != "" && p.sameHost(src) {
			result.Iframes = append(result.Iframes, src)
		}
	}

	for _, attr := range eventAttributes {
		if getAttr(n, attr) != "" {
			result.Events = append(result.Events, Event{
				Selector: selector(n),
				Handler:  attr,
				Label:    nodeText(n),
			})
			break
		}
	}
}

// parseForm reads a <form>. Forms without an action submit to the page
// itself.
func (p *Parser) parseForm(n *html.Node) model.Form {
	action := getAttr(n, "action")
	form := model.Form{
		Action: p.resolveURL(action),
		Method: strings.ToUpper(getAttr(n, "method")),
	}
	if action == "" || form.Action == "" {
		form.Action = stripFragment(p.baseURL.String())
	}
	if form.Method == "" {
		form.Method = "GET"
	}

	labels := make(map[string]string)
	collectLabels(n, labels)
	p.extractFormFields(n, &form, labels)
	return form
}

func (p *Parser) extractFormFields(n *html.Node, form *model.Form, labels map[string]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case htmlElementInput, htmlElementSelect, htmlElementTextarea:
			field := model.FormField{
				Name:  getAttr(n, "name"),
				Type:  strings.ToLower(getAttr(n, "type")),
				Value: getAttr(n, "value"),
				Label: fieldLabel(n, labels),
			}
			if field.Type == "" {
				switch n.Data {
				case htmlElementTextarea:
					field.Type = htmlElementTextarea
				case htmlElementSelect:
					field.Type = htmlElementSelect
					field.Value = firstOption(n)
				default:
					field.Type = "text"
				}
			}
			if field.Type == "submit" && form.Submit == "" {
				form.Submit = field.Value
			}
			if field.Name != "" {
				form.Fields = append(form.Fields, field)
			}
		case htmlElementButton:
			typ := strings.ToLower(getAttr(n, "type"))
			if (typ == "" || typ == "submit") && form.Submit == "" {
				form.Submit = nodeText(n)
			}
			if name := getAttr(n, "name"); name != "" {
				form.Fields = append(form.Fields, model.FormField{Name: name, Type: "submit", Value: getAttr(n, "value"), Label: nodeText(n)})
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.extractFormFields(c, form, labels)
	}
}

func collectLabels(n *html.Node, labels map[string]string) {
	if n.Type == html.ElementNode && n.Data == "label" {
		if id := getAttr(n, "for"); id != "" {
			labels[id] = nodeText(n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLabels(c, labels)
	}
}

func fieldLabel(n *html.Node, labels map[string]string) string {
	if id := getAttr(n, "id"); id != "" && labels[id] != "" {
		return labels[id]
	}
	if l := getAttr(n, "aria-label"); l != "" {
		return l
	}
	return getAttr(n, "placeholder")
}

func firstOption(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "option" {
			if v := getAttr(c, "value"); v != "" {
				return v
			}
			return nodeText(c)
		}
	}
	return ""
}

func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		strings.HasPrefix(href, "#") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func (p *Parser) sameHost(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, p.baseURL.Host)
}

func stripFragment(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return link[:i]
	}
	return link
}

// selector builds a CSS selector from the tag, id and first class.
func selector(n *html.Node) string {
	if id := getAttr(n, "id"); id != "" {
		return n.Data + "#" + id
	}
	if class := strings.Fields(getAttr(n, "class")); len(class) > 0 {
		return n.Data + "." + class[0]
	}
	return n.Data
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
