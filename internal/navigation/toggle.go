package navigation

import (
	"ctxnav/internal/dom"

	"golang.org/x/net/html"
)

const (
	toggleButtonClass = "my-3 btn btn-secondary btn-sm"
	toggleGroupClass  = "pl-0 prev-siblings"

	defaultCollapseLabel = "Collapse"
	defaultExpandLabel   = "Expand"
)

// DisclosureToggle is the button that reveals or hides the collapsed nodes of
// its group. It starts labelled for expansion while the nodes it governs
// start collapsed; the button itself never hides.
type DisclosureToggle struct {
	el            *html.Node
	collapseLabel string
	expandLabel   string
}

// NewDisclosureToggle builds a detached button.
func NewDisclosureToggle(collapseLabel, expandLabel string) *DisclosureToggle {
	el := dom.Element("button", dom.A("class", toggleButtonClass))
	dom.SetText(el, expandLabel)
	return &DisclosureToggle{el: el, collapseLabel: collapseLabel, expandLabel: expandLabel}
}

// Element returns the button node.
func (t *DisclosureToggle) Element() *html.Node { return t.el }

// Label returns the current button text.
func (t *DisclosureToggle) Label() string { return dom.InnerText(t.el) }

// Governed lists the collapsible siblings in the toggle's group.
func (t *DisclosureToggle) Governed() []*html.Node {
	if t.el.Parent == nil {
		return nil
	}
	return dom.ChildrenByClass(t.el.Parent, "li", CollapsibleClass)
}

// Click flips every governed node and the button in lockstep, then relabels.
func (t *DisclosureToggle) Click() {
	for _, li := range t.Governed() {
		dom.ToggleClass(li, CollapsedClass)
	}
	if dom.ToggleClass(t.el, CollapsedClass) {
		dom.SetText(t.el, t.collapseLabel)
		return
	}
	dom.SetText(t.el, t.expandLabel)
}

// newToggleGroup returns a <ul> holding a fresh toggle as its first child.
func newToggleGroup(collapseLabel, expandLabel string) (*html.Node, *DisclosureToggle) {
	ul := dom.Element("ul", dom.A("class", toggleGroupClass))
	toggle := NewDisclosureToggle(collapseLabel, expandLabel)
	dom.Append(ul, toggle.el)
	return ul, toggle
}
