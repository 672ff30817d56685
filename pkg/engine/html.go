package engine

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageSnapshot is the cleaned, model-facing view of the current page:
// enough structure to plan the next action without shipping raw markup.
type PageSnapshot struct {
	Title        string
	Interactives []string
	Text         string
}

// snapshotHTML parses raw page HTML and extracts the title, an inventory of
// interactive elements (links, buttons, inputs) with enough attributes to
// build a selector, and the visible text. Scripts, styles and comments are
// dropped.
func snapshotHTML(rawHTML string) (*PageSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	snap := &PageSnapshot{}
	var textParts []string
	walkNodes(doc, snap, &textParts)
	snap.Text = strings.Join(textParts, " ")
	return snap, nil
}

func walkNodes(n *html.Node, snap *PageSnapshot, textParts *[]string) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		switch tag {
		case "script", "style", "noscript", "svg", "iframe", "head":
			if tag == "head" {
				// Still pull the title out of head before skipping it.
				if title := findTitle(n); title != "" {
					snap.Title = title
				}
			}
			return
		case "a", "button":
			if desc := describeInteractive(n, tag); desc != "" {
				snap.Interactives = append(snap.Interactives, desc)
			}
		case "input", "textarea", "select":
			if desc := describeInput(n, tag); desc != "" {
				snap.Interactives = append(snap.Interactives, desc)
			}
		}
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			*textParts = append(*textParts, text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, snap, textParts)
	}
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && strings.ToLower(n.Data) == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func describeInteractive(n *html.Node, tag string) string {
	label := strings.TrimSpace(nodeText(n))
	if label == "" {
		label = attr(n, "aria-label")
	}
	if label == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>%s", tag, label)
	if id := attr(n, "id"); id != "" {
		fmt.Fprintf(&b, " id=%s", id)
	}
	if href := attr(n, "href"); href != "" {
		fmt.Fprintf(&b, " href=%s", href)
	}
	return b.String()
}

func describeInput(n *html.Node, tag string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", tag)
	for _, key := range []string{"id", "name", "type", "placeholder", "aria-label"} {
		if v := attr(n, key); v != "" {
			fmt.Fprintf(&b, " %s=%s", key, v)
		}
	}
	if b.Len() == len(tag)+2 {
		return ""
	}
	return b.String()
}

func nodeText(n *html.Node) string {
	var parts []string
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(parts, " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// Render formats the snapshot for a model prompt, truncating the free text
// to the given token budget. Interactive elements are listed first so they
// survive truncation.
func (s *PageSnapshot) Render(maxTextTokens int) string {
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", s.Title)
	}
	if len(s.Interactives) > 0 {
		b.WriteString("Interactive elements:\n")
		for _, el := range s.Interactives {
			fmt.Fprintf(&b, "  %s\n", el)
		}
	}
	if s.Text != "" {
		fmt.Fprintf(&b, "Visible text: %s\n", truncateTokens(s.Text, maxTextTokens))
	}
	return b.String()
}
