// Package fixture serves collection context fragments from a YAML-described
// hierarchy. It stands in for the search-backed endpoint in tests and local
// development and speaks exactly the query and markup contract the
// navigation engine consumes.
package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tree is the whole fixture dataset.
type Tree struct {
	Collections []*Collection `yaml:"collections"`

	byName map[string]*Collection
}

// Collection is one finding aid.
type Collection struct {
	EADID string  `yaml:"eadid"`
	Title string  `yaml:"title"`
	Nodes []*Node `yaml:"nodes"`

	children map[string][]*Node
	byID     map[string]*Node
}

// Node is one component of a collection.
type Node struct {
	Ref      string  `yaml:"ref"`
	Title    string  `yaml:"title"`
	Online   bool    `yaml:"online"`
	Children []*Node `yaml:"children"`

	level      int
	parentRef  string
	ancestors  []string
	hasOnline  bool
	collection *Collection
}

// ID is the document identity: the collection eadid followed by the ref.
func (n *Node) ID() string { return n.collection.EADID + n.Ref }

// Level is the component depth; top-level components are level 1.
func (n *Node) Level() int { return n.level }

// Ancestors is the chain from the collection down to the node's parent.
func (n *Node) Ancestors() []string { return append([]string(nil), n.ancestors...) }

// LoadTree reads a YAML fixture file.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture tree: %w", err)
	}
	return ParseTree(data)
}

// ParseTree decodes and indexes a YAML fixture tree.
func ParseTree(data []byte) (*Tree, error) {
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse fixture tree: %w", err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tree) index() error {
	t.byName = make(map[string]*Collection)
	for i, c := range t.Collections {
		if c.EADID == "" {
			return fmt.Errorf("collection %d: eadid required", i)
		}
		if c.Title == "" {
			c.Title = c.EADID
		}
		if _, dup := t.byName[c.Title]; dup {
			return fmt.Errorf("collection %q declared twice", c.Title)
		}
		t.byName[c.Title] = c
		c.children = make(map[string][]*Node)
		c.byID = make(map[string]*Node)
		if err := c.indexNodes(c.Nodes, c.EADID, []string{c.EADID}, 1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) indexNodes(nodes []*Node, parentRef string, chain []string, level int) error {
	for _, n := range nodes {
		if n.Ref == "" {
			return fmt.Errorf("collection %s: node at level %d has no ref", c.EADID, level)
		}
		n.collection = c
		n.level = level
		n.parentRef = parentRef
		n.ancestors = append([]string(nil), chain...)
		if _, dup := c.byID[n.ID()]; dup {
			return fmt.Errorf("collection %s: duplicate ref %q", c.EADID, n.Ref)
		}
		c.byID[n.ID()] = n
		c.children[parentRef] = append(c.children[parentRef], n)
		if err := c.indexNodes(n.Children, n.Ref, append(append([]string(nil), chain...), n.Ref), level+1); err != nil {
			return err
		}
		n.hasOnline = n.Online
		for _, ch := range n.Children {
			n.hasOnline = n.hasOnline || ch.hasOnline
		}
	}
	return nil
}

// Collection finds a collection by title or eadid.
func (t *Tree) Collection(name string) (*Collection, bool) {
	if c, ok := t.byName[name]; ok {
		return c, true
	}
	for _, c := range t.Collections {
		if c.EADID == name {
			return c, true
		}
	}
	return nil, false
}

// Find locates a document by id across collections.
func (t *Tree) Find(id string) (*Collection, *Node, bool) {
	for _, c := range t.Collections {
		if n, ok := c.byID[id]; ok {
			return c, n, true
		}
		if c.EADID == id {
			return c, nil, true
		}
	}
	return nil, nil, false
}

// Query selects the nodes at level under parent, in declared order. An empty
// parent means the collection root.
func (c *Collection) Query(level int, parent string, onlineOnly bool) []*Node {
	if parent == "" {
		parent = c.EADID
	}
	var out []*Node
	for _, n := range c.children[parent] {
		if n.level != level {
			continue
		}
		if onlineOnly && !n.hasOnline {
			continue
		}
		out = append(out, n)
	}
	return out
}
