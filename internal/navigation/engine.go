package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"ctxnav/internal/dom"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	// ResolvedAttr is set on a mount's container once its list is rendered.
	ResolvedAttr = "data-resolved"
	// ViewChildrenClass marks the control that drills into a node's children.
	ViewChildrenClass = "al-toggle-view-children"
)

// State is the lifecycle position of one engine instance.
type State int32

const (
	StateConstructed State = iota
	StatePlaceholderShown
	StateRequesting
	StateReconcilingSiblings
	StateReconcilingAncestors
	StateRendered
	// StateStalled: the request or its decode failed. The placeholder stays.
	StateStalled
	// StateFailed: the batch held a malformed node. The placeholder stays.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StatePlaceholderShown:
		return "placeholder-shown"
	case StateRequesting:
		return "requesting"
	case StateReconcilingSiblings:
		return "reconciling-siblings"
	case StateReconcilingAncestors:
		return "reconciling-ancestors"
	case StateRendered:
		return "rendered"
	case StateStalled:
		return "stalled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Settled reports whether the engine will not change state again.
func (s State) Settled() bool {
	return s == StateRendered || s == StateStalled || s == StateFailed
}

var errAlreadyStarted = errors.New("engine already resolved")

// Engine discloses the context around the viewed node for one mount point.
type Engine struct {
	id        string
	page      *Page
	el        *html.Node
	container *html.Node
	rc        RequestContext
	labels    Labels
	logger    *zap.Logger

	state atomic.Int32
	once  sync.Once
	done  chan struct{}

	// written before done is closed
	err     error
	outcome Outcome
	list    *html.Node
	toggle  *DisclosureToggle
}

// NewEngine binds an engine to a mount point. parents is the ancestor chain
// to pass through (nil discards chain context); an empty originalDocument
// falls back to the mount's declaration.
func NewEngine(p *Page, el *html.Node, parents []string, originalDocument string) (*Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return newEngineLocked(p, el, parents, originalDocument)
}

func newEngineLocked(p *Page, el *html.Node, parents []string, originalDocument string) (*Engine, error) {
	mount, err := ParseMount(el)
	if err != nil {
		return nil, err
	}
	if el.Parent == nil {
		return nil, invalidMount("mount", "element is detached")
	}
	id := uuid.NewString()
	e := &Engine{
		id:        id,
		page:      p,
		el:        el,
		container: el.Parent,
		rc:        NewRequestContext(mount, parents, originalDocument),
		labels:    Labels{Collapse: mount.CollapseLabel, Expand: mount.ExpandLabel}.orDefault(p.labels),
		done:      make(chan struct{}),
	}
	e.logger = p.logger.With(
		zap.String("engine", id),
		zap.Int("level", mount.Level),
		zap.String("document", e.rc.OriginalDocument),
	)
	return e, nil
}

// ID is the engine's correlation id.
func (e *Engine) ID() string { return e.id }

// Mount returns the mount point element.
func (e *Engine) Mount() *html.Node { return e.el }

// Context returns the request context derived at construction.
func (e *Engine) Context() RequestContext { return e.rc }

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Done is closed once the engine has settled.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the stall or integrity error once settled.
func (e *Engine) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Outcome returns the reconciliation branch taken, once rendered.
func (e *Engine) Outcome() Outcome {
	select {
	case <-e.done:
		return e.outcome
	default:
		return OutcomeNone
	}
}

// List returns the rendered visible list, once rendered.
func (e *Engine) List() *html.Node {
	select {
	case <-e.done:
		return e.list
	default:
		return nil
	}
}

// Toggle returns the disclosure toggle built for the visible list, if any.
func (e *Engine) Toggle() *DisclosureToggle {
	select {
	case <-e.done:
		return e.toggle
	default:
		return nil
	}
}

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

func (e *Engine) settle(s State, err error) {
	e.err = err
	e.setState(s)
	close(e.done)
}

// Start resolves the engine on its own goroutine, tracked by Page.Wait.
func (e *Engine) Start(ctx context.Context) {
	e.page.start(ctx, e)
}

// Resolve runs the whole disclosure for this mount point: placeholder,
// request, reconciliation, render, wiring and recursion into the surfaced
// ancestor. An engine resolves at most once.
func (e *Engine) Resolve(ctx context.Context) error {
	err := errAlreadyStarted
	e.once.Do(func() { err = e.resolve(ctx) })
	return err
}

func (e *Engine) resolve(ctx context.Context) error {
	p := e.page
	p.metrics.engineStarted()

	ctx, span := p.tracer.Start(ctx, "navigation.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("engine.id", e.id),
		attribute.Int("mount.level", e.rc.Mount.Level),
		attribute.String("mount.collection", e.rc.Mount.Name),
		attribute.String("target.id", e.rc.TargetID()),
	)

	p.mu.Lock()
	phErr := ShowPlaceholder(e.el)
	p.mu.Unlock()
	if phErr != nil {
		e.logger.Warn("Failed to show placeholder", zap.Error(phErr))
	}
	e.setState(StatePlaceholderShown)

	target, err := e.rc.URL(p.base)
	if err != nil {
		return e.stall(span, err)
	}

	e.setState(StateRequesting)
	e.logger.Debug("Requesting collection context", zap.String("url", target))
	body, err := e.fetch(ctx, target)
	if err != nil {
		return e.stall(span, err)
	}

	batch, err := ParseBatch(body)
	if err != nil {
		return e.stall(span, fmt.Errorf("%w: %v", ErrFetch, err))
	}

	p.mu.Lock()
	result, err := e.renderLocked(ctx, batch)
	p.mu.Unlock()
	if err != nil {
		e.logger.Error("Malformed collection context response", zap.Error(err))
		p.metrics.failed("integrity")
		span.RecordError(err)
		span.SetStatus(codes.Error, "integrity")
		e.settle(StateFailed, err)
		return err
	}

	e.outcome = result.Outcome
	e.list = result.List
	e.toggle = result.Toggle
	p.metrics.reconciled(result.Outcome)
	span.SetAttributes(
		attribute.String("reconcile.outcome", result.Outcome.String()),
		attribute.Int("batch.size", len(batch)),
	)
	e.logger.Debug("Rendered collection context",
		zap.Stringer("outcome", result.Outcome),
		zap.Int("nodes", len(batch)),
		zap.Bool("toggle", result.Toggle != nil))

	e.settle(StateRendered, nil)
	p.emit(Event{Name: EventContainsElements, Target: e.el, Engine: e})
	return nil
}

func (e *Engine) fetch(ctx context.Context, target string) (string, error) {
	release, err := e.page.acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer release()

	done := e.page.metrics.requestStarted()
	defer done()
	body, err := e.page.fetcher.Fetch(ctx, target)
	if err != nil && !errors.Is(err, ErrFetch) {
		err = fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return body, err
}

// stall leaves the engine pending with its placeholder visible. There is no
// retry; the error is kept for Err.
func (e *Engine) stall(span trace.Span, err error) error {
	e.logger.Warn("Collection context request stalled", zap.Error(err))
	e.page.metrics.failed("stalled")
	span.RecordError(err)
	span.SetStatus(codes.Error, "stalled")
	e.settle(StateStalled, err)
	return err
}

// renderLocked reconciles the batch into the mount point. Caller holds p.mu.
func (e *Engine) renderLocked(ctx context.Context, batch Batch) (*Reconciliation, error) {
	if _, err := batch.IDs(); err != nil {
		return nil, err
	}
	if indexOfBatch(batch, e.rc.OriginalDocument) != -1 {
		e.setState(StateReconcilingSiblings)
	} else {
		e.setState(StateReconcilingAncestors)
	}

	result, err := Reconcile(batch, e.rc, e.labels)
	if err != nil {
		return nil, err
	}

	ClearPlaceholders(e.container)
	dom.ReplaceChildren(e.el, result.List)
	dom.SetAttr(e.container, ResolvedAttr, "true")

	if result.Toggle != nil {
		toggle := result.Toggle
		e.page.onClickLocked(toggle.Element(), func(context.Context, *html.Node) {
			toggle.Click()
			e.page.metrics.toggled()
		})
	}
	e.wireViewChildrenLocked(result.List)

	if result.Target != nil {
		for _, mount := range MountPoints(result.Target) {
			child, err := newEngineLocked(e.page, mount, e.rc.Parents, e.rc.OriginalDocument)
			if err != nil {
				e.logger.Warn("Skipping nested mount point", zap.Error(err))
				continue
			}
			e.page.start(ctx, child)
		}
	}
	return result, nil
}

// wireViewChildrenLocked binds the drill-down controls of the built list.
// A drill-down re-scopes the query on the clicked node, so the ancestor
// chain is dropped.
func (e *Engine) wireViewChildrenLocked(list *html.Node) {
	for _, ctl := range dom.ByClass(list, "*", ViewChildrenClass) {
		e.page.onClickLocked(ctl, func(ctx context.Context, el *html.Node) {
			href, _ := dom.Attr(el, "href")
			area := dom.ByID(dom.Root(el), strings.TrimPrefix(href, "#"))
			if area == nil {
				e.logger.Warn("Drill-down target not found", zap.String("href", href))
				return
			}
			if v, _ := dom.Attr(area, ResolvedAttr); v == "true" {
				return
			}
			for _, mount := range MountPoints(area) {
				child, err := newEngineLocked(e.page, mount, nil, e.rc.OriginalDocument)
				if err != nil {
					e.logger.Warn("Skipping drill-down mount point", zap.Error(err))
					continue
				}
				e.page.start(ctx, child)
			}
		})
	}
}

func indexOfBatch(batch Batch, id string) int {
	for i, n := range batch {
		if have, err := n.ID(); err == nil && have == id {
			return i
		}
	}
	return -1
}
