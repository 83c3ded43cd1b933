package navigation

import (
	"ctxnav/internal/dom"

	"golang.org/x/net/html"
)

// VisibleListClass marks the list an engine renders into its mount point.
const VisibleListClass = "al-context-nav-parent"

// Outcome is the reconciliation branch an engine took.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSiblings
	OutcomeAncestors
	// OutcomeFlat is the ancestors branch when the target was not found.
	OutcomeFlat
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSiblings:
		return "siblings"
	case OutcomeAncestors:
		return "ancestors"
	case OutcomeFlat:
		return "flat"
	default:
		return "none"
	}
}

// Batch is the ordered sequence of nodes parsed from one response.
type Batch []*TreeNode

// ParseBatch extracts every article under #documents in document order.
func ParseBatch(body string) (Batch, error) {
	doc, err := dom.ParseString(body)
	if err != nil {
		return nil, err
	}
	return BatchFrom(doc), nil
}

// BatchFrom collects the batch from an already parsed document.
func BatchFrom(doc *html.Node) Batch {
	articles := dom.Find(doc, ".//*[@id='documents']//article")
	batch := make(Batch, 0, len(articles))
	for _, a := range articles {
		batch = append(batch, NewTreeNode(a))
	}
	return batch
}

// IDs returns the identities in batch order. Every node must declare one.
func (b Batch) IDs() ([]string, error) {
	ids := make([]string, len(b))
	for i, n := range b {
		id, err := n.ID()
		if err != nil {
			return nil, &IntegrityError{Index: i, Err: err}
		}
		ids[i] = id
	}
	return ids, nil
}

// checkMarkable verifies the nodes at idx, in ascending order, can be styled.
func (b Batch) checkMarkable(idx []int) error {
	for _, i := range idx {
		if err := b[i].markable(); err != nil {
			return &IntegrityError{Index: i, Err: err}
		}
	}
	return nil
}

// upTo lists 0..n-1.
func upTo(n int) []int {
	out := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}

// Reconciliation is the visible list built from one batch.
type Reconciliation struct {
	List    *html.Node
	Outcome Outcome
	// Toggle is set when a run of nodes was collapsed behind one control.
	Toggle *DisclosureToggle
	// Highlighted is the batch index marked highlighted, or -1.
	Highlighted int
	// Target is the list item surfaced at the ancestors-case target position.
	Target *html.Node
}

// Labels are the two toggle captions.
type Labels struct {
	Collapse string
	Expand   string
}

func (l Labels) orDefault(fallback Labels) Labels {
	if l.Collapse == "" {
		l.Collapse = fallback.Collapse
	}
	if l.Expand == "" {
		l.Expand = fallback.Expand
	}
	return l
}

// Reconcile decides between the siblings and ancestors cases and builds the
// visible list. Node order is never changed. Only nodes that get styled need
// a context list item; the batch is left untouched when one is missing.
func Reconcile(batch Batch, rc RequestContext, labels Labels) (*Reconciliation, error) {
	ids, err := batch.IDs()
	if err != nil {
		return nil, err
	}
	r := &Reconciliation{
		List:        dom.Element("ul", dom.A("class", VisibleListClass)),
		Highlighted: -1,
	}
	if i := indexOf(ids, rc.OriginalDocument); i != -1 {
		marked := []int{i}
		if i > 1 {
			marked = append(upTo(i-1), i)
		}
		if err := batch.checkMarkable(marked); err != nil {
			return nil, err
		}
		r.reconcileSiblings(batch, i, labels)
		return r, nil
	}
	j := indexOf(ids, rc.TargetID())
	if j > 1 {
		if err := batch.checkMarkable(upTo(j)); err != nil {
			return nil, err
		}
	}
	r.reconcileAncestors(batch, j, labels)
	return r, nil
}

func (r *Reconciliation) reconcileSiblings(batch Batch, i int, labels Labels) {
	r.Outcome = OutcomeSiblings
	r.Highlighted = i
	batch[i].MarkHighlighted()

	next := batch
	prev := batch[:i]
	if len(prev) > 1 && i > 0 {
		// The immediate predecessor stays visible inside the group.
		for _, n := range prev[:len(prev)-1] {
			n.MarkCollapsible()
			n.MarkCollapsed()
		}
		r.appendGroup(prev, labels)
		next = batch[i:]
	}
	r.appendAll(next)
}

func (r *Reconciliation) reconcileAncestors(batch Batch, j int, labels Labels) {
	if j == -1 {
		r.Outcome = OutcomeFlat
		r.appendAll(batch)
		return
	}
	r.Outcome = OutcomeAncestors

	before := batch[:j]
	if len(before) > 1 {
		for _, n := range before {
			n.MarkCollapsible()
			n.MarkCollapsed()
		}
		r.appendGroup(before, labels)
	} else {
		r.appendAll(before)
	}

	r.Target = batch[j].Detach()
	dom.Append(r.List, r.Target)
	r.appendAll(batch[j+1:])
}

func (r *Reconciliation) appendGroup(nodes Batch, labels Labels) {
	group, toggle := newToggleGroup(labels.Collapse, labels.Expand)
	for _, n := range nodes {
		dom.Append(group, n.Detach())
	}
	dom.Append(r.List, group)
	r.Toggle = toggle
}

func (r *Reconciliation) appendAll(nodes Batch) {
	for _, n := range nodes {
		dom.Append(r.List, n.Detach())
	}
}

func indexOf(ids []string, id string) int {
	for i, have := range ids {
		if have == id {
			return i
		}
	}
	return -1
}
