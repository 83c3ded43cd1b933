// Package outline prints a resolved context navigation tree as indented text.
package outline

import (
	"io"
	"strings"

	"ctxnav/internal/dom"
	"ctxnav/internal/navigation"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/net/html"
)

const titleClass = "document-title"

// Styles decorate outline lines.
type Styles struct {
	Highlight lipgloss.Style
	Item      lipgloss.Style
	Collapsed lipgloss.Style
	Toggle    lipgloss.Style
	Pending   lipgloss.Style
}

// DefaultStyles builds styles bound to the renderer for w.
func DefaultStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Highlight: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Item:      r.NewStyle(),
		Collapsed: r.NewStyle().Faint(true),
		Toggle:    r.NewStyle().Foreground(lipgloss.Color("39")),
		Pending:   r.NewStyle().Italic(true).Foreground(lipgloss.Color("241")),
	}
}

// Options control what is printed.
type Options struct {
	// ShowCollapsed prints collapsed items dimmed instead of hiding them.
	ShowCollapsed bool
	Indent        string
	Styles        Styles
}

// Render walks root and returns one line per visible item.
func Render(root *html.Node, opts Options) string {
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	w := &writer{opts: opts}
	w.walk(root, 0)
	return w.sb.String()
}

type writer struct {
	opts Options
	sb   strings.Builder
}

func (w *writer) line(depth int, style lipgloss.Style, text string) {
	w.sb.WriteString(strings.Repeat(w.opts.Indent, depth))
	w.sb.WriteString(style.Render(text))
	w.sb.WriteByte('\n')
}

func (w *writer) walk(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch {
		case c.Data == "li" && dom.HasClass(c, navigation.ContextItemClass):
			w.item(c, depth)
		case c.Data == "button" && c.Parent != nil && dom.HasClass(c.Parent, "prev-siblings"):
			w.line(depth, w.opts.Styles.Toggle, "["+strings.TrimSpace(dom.InnerText(c))+"]")
		case dom.HasClass(c, navigation.PlaceholderClass):
			if prev := previousElement(c); prev == nil || !dom.HasClass(prev, navigation.PlaceholderClass) {
				w.line(depth, w.opts.Styles.Pending, "(loading)")
			}
		default:
			w.walk(c, depth)
		}
	}
}

func (w *writer) item(li *html.Node, depth int) {
	collapsed := dom.HasClass(li, navigation.CollapsedClass)
	if collapsed && !w.opts.ShowCollapsed {
		return
	}
	title := itemTitle(li)
	switch {
	case dom.HasClass(li, navigation.HighlightClass):
		w.line(depth, w.opts.Styles.Highlight, "> "+title)
	case collapsed:
		w.line(depth, w.opts.Styles.Collapsed, "- "+title)
	default:
		w.line(depth, w.opts.Styles.Item, "- "+title)
	}
	w.walk(li, depth+1)
}

// itemTitle finds the title belonging to li itself, not to a nested item.
func itemTitle(li *html.Node) string {
	for _, span := range dom.ByClass(li, "span", titleClass) {
		if owner := closestItem(span); owner == li {
			return strings.TrimSpace(dom.InnerText(span))
		}
	}
	id, _ := dom.Attr(li, navigation.DocumentIDAttr)
	return id
}

func closestItem(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "li" && dom.HasClass(p, navigation.ContextItemClass) {
			return p
		}
	}
	return nil
}

func previousElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}
