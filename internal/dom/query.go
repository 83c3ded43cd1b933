package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Find returns every descendant of top matching the XPath expression.
// An invalid expression yields no matches.
func Find(top *html.Node, expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(top, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// FindOne returns the first match in document order, or nil.
func FindOne(top *html.Node, expr string) *html.Node {
	n, err := htmlquery.Query(top, expr)
	if err != nil {
		return nil
	}
	return n
}

// ClassPredicate is the XPath test for an element carrying class c.
func ClassPredicate(c string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", c)
}

// ByClass finds descendants of top with the given tag ("*" for any) and class.
func ByClass(top *html.Node, tag, class string) []*html.Node {
	return Find(top, fmt.Sprintf(".//%s[%s]", tag, ClassPredicate(class)))
}

// FirstByClass is ByClass limited to the first match.
func FirstByClass(top *html.Node, tag, class string) *html.Node {
	return FindOne(top, fmt.Sprintf(".//%s[%s]", tag, ClassPredicate(class)))
}

// ChildrenByClass returns the direct element children of n with tag and class.
func ChildrenByClass(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	for _, c := range ElementChildren(n) {
		if (tag == "*" || c.Data == tag) && HasClass(c, class) {
			out = append(out, c)
		}
	}
	return out
}

// FirstWithAttr returns the first descendant carrying attribute key.
func FirstWithAttr(top *html.Node, key string) *html.Node {
	return FindOne(top, fmt.Sprintf(".//*[@%s]", key))
}

// ByAttrValue finds descendants whose attribute key equals val.
func ByAttrValue(top *html.Node, key, val string) []*html.Node {
	return Find(top, fmt.Sprintf(".//*[@%s=%s]", key, literal(val)))
}

// ByID returns the element of top's tree with the given id, or nil.
func ByID(top *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return FindOne(top, fmt.Sprintf(".//*[@id=%s]", literal(id)))
}

// Root walks up to the topmost ancestor of n.
func Root(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// literal quotes s as an XPath string literal.
func literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
