package navigation

import (
	"ctxnav/internal/dom"

	"golang.org/x/net/html"
)

// PlaceholderClass marks skeleton blocks shown while a request is in flight.
const PlaceholderClass = "al-hierarchy-placeholder"

const placeholderBlocks = 3

// ShowPlaceholder inserts the skeleton blocks right after the mount point.
func ShowPlaceholder(mount *html.Node) error {
	blocks := make([]*html.Node, 0, placeholderBlocks)
	for i := 0; i < placeholderBlocks; i++ {
		blocks = append(blocks, placeholderBlock())
	}
	return dom.InsertAfter(mount, blocks...)
}

// ClearPlaceholders removes every skeleton block below container.
func ClearPlaceholders(container *html.Node) int {
	found := dom.ByClass(container, "*", PlaceholderClass)
	for _, n := range found {
		dom.Detach(n)
	}
	return len(found)
}

func placeholderBlock() *html.Node {
	div := dom.Element("div", dom.A("class", PlaceholderClass))
	dom.Append(div,
		dom.Element("h3", dom.A("class", "col-md-9")),
		dom.Element("p", dom.A("class", "col-md-6")),
		dom.Element("p", dom.A("class", "col-md-12")),
		dom.Element("p", dom.A("class", "col-md-3")),
	)
	return div
}
