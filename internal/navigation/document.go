package navigation

import (
	"ctxnav/internal/dom"

	"golang.org/x/net/html"
)

// Markup contract shared with the fragment producer.
const (
	DocumentIDAttr = "data-document-id"

	ContextItemClass = "al-collection-context"
	HighlightClass   = "al-hierarchy-highlight"
	CollapsibleClass = "collapsible"
	CollapsedClass   = "collapsed"
)

// TreeNode wraps one <article> of a response batch until it is detached into
// the visible list.
type TreeNode struct {
	el *html.Node
}

// NewTreeNode wraps an article element.
func NewTreeNode(article *html.Node) *TreeNode {
	return &TreeNode{el: article}
}

// ID reads the node identity from the first descendant declaring one.
func (d *TreeNode) ID() (string, error) {
	holder := dom.FirstWithAttr(d.el, DocumentIDAttr)
	if holder == nil {
		return "", ErrMissingIdentity
	}
	id, _ := dom.Attr(holder, DocumentIDAttr)
	return id, nil
}

func (d *TreeNode) contextItem() *html.Node {
	return dom.FirstByClass(d.el, "li", ContextItemClass)
}

// markable reports an error when the node has no list item to carry classes.
func (d *TreeNode) markable() error {
	if d.contextItem() == nil {
		return ErrMissingContextItem
	}
	return nil
}

func (d *TreeNode) mark(class string) {
	if li := d.contextItem(); li != nil {
		dom.AddClass(li, class)
	}
}

// MarkHighlighted flags the node as the one being viewed.
func (d *TreeNode) MarkHighlighted() { d.mark(HighlightClass) }

// MarkCollapsible lets a disclosure toggle govern the node.
func (d *TreeNode) MarkCollapsible() { d.mark(CollapsibleClass) }

// MarkCollapsed hides the node until its toggle is clicked.
func (d *TreeNode) MarkCollapsed() { d.mark(CollapsedClass) }

// Detach removes and returns the article's first element child, the unit
// that goes into the visible list. Calling it twice is undefined.
func (d *TreeNode) Detach() *html.Node {
	return dom.Detach(dom.FirstElementChild(d.el))
}
