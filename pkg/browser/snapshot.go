package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Markup is page content reduced to what helps diagnose a failed test:
// structure, test ids, form state and visible text.
type Markup struct {
	HTML      string
	Title     string
	Truncated bool
}

// Render prefixes the snapshot with a comment naming its source page.
func (d *Markup) Render(url string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- url: %s -->\n", url)
	if d.Title != "" {
		fmt.Fprintf(&b, "<!-- title: %s -->\n", d.Title)
	}
	if d.Truncated {
		b.WriteString("<!-- truncated -->\n")
	}
	b.WriteString(d.HTML)
	b.WriteString("\n")
	return b.String()
}

// CleanMarkup parses raw page content and writes a cleaned copy of at most
// limit bytes. A limit of 0 means no limit.
func CleanMarkup(raw string, limit int) (*Markup, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &snapshotWriter{limit: limit}
	w.node(doc, 0)
	return &Markup{
		HTML:      w.b.String(),
		Title:     findTitle(doc),
		Truncated: w.truncated,
	}, nil
}

type snapshotWriter struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func (w *snapshotWriter) full() bool {
	if w.limit > 0 && w.b.Len() >= w.limit {
		w.truncated = true
	}
	return w.truncated
}

func (w *snapshotWriter) node(n *html.Node, depth int) {
	if w.full() {
		return
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		w.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedTags[tag] {
			return
		}
		w.element(n, tag, depth)
	default:
		w.children(n, depth)
	}
}

func (w *snapshotWriter) children(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c, depth)
		if w.truncated {
			return
		}
	}
}

func (w *snapshotWriter) text(data string) {
	text := strings.Join(strings.Fields(data), " ")
	if text == "" {
		return
	}
	if w.limit > 0 && w.b.Len()+len(text) > w.limit {
		cut := max(w.limit-w.b.Len(), 0)
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		w.truncated = true
	}
	w.b.WriteString(html.EscapeString(text))
}

func (w *snapshotWriter) element(n *html.Node, tag string, depth int) {
	block := blockTags[tag]
	if block && depth > 0 {
		w.b.WriteString("\n")
		w.b.WriteString(strings.Repeat("  ", depth))
	}

	w.b.WriteString("<")
	w.b.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, strings.ToLower(attr.Key)) {
			fmt.Fprintf(&w.b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	w.b.WriteString(">")

	if voidTags[tag] {
		return
	}
	w.children(n, depth+1)
	if block {
		w.b.WriteString("\n")
		w.b.WriteString(strings.Repeat("  ", depth))
	}
	fmt.Fprintf(&w.b, "</%s>", tag)
}

var droppedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"link":     true,
	"meta":     true,
	"svg":      true,
	"canvas":   true,
	"iframe":   true,
	"template": true,
}

var blockTags = map[string]bool{
	"html": true, "head": true, "body": true,
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "thead": true,
	"tbody": true, "tr": true, "td": true, "th": true, "dialog": true,
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// keepAttribute retains locators (test ids, ids, roles), state that explains
// a failed wait (value, disabled, checked, aria-*) and link targets.
func keepAttribute(tag, attr string) bool {
	switch {
	case strings.HasPrefix(attr, "data-"), strings.HasPrefix(attr, "aria-"):
		return true
	}
	switch attr {
	case "id", "class", "role", "title", "disabled", "readonly", "checked", "selected", "hidden":
		return true
	}
	switch tag {
	case "input", "textarea", "select", "option":
		return attr == "name" || attr == "type" || attr == "value" || attr == "placeholder"
	case "button":
		return attr == "type" || attr == "name"
	case "a":
		return attr == "href"
	case "img":
		return attr == "alt"
	}
	return false
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
