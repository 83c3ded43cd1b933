package navigation

import (
	"context"
	"net/url"
	"sync"

	"ctxnav/internal/dom"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/semaphore"
)

// EventContainsElements is emitted on a mount point once its list is rendered.
const EventContainsElements = "navigation.contains.elements"

// Event is delivered to listeners registered with Page.On.
type Event struct {
	Name   string
	Target *html.Node
	Engine *Engine
}

type clickHandler func(ctx context.Context, el *html.Node)

// Page owns one DOM tree and serializes every access to it. Engines do their
// network work outside the lock and take it to read or mutate the tree.
type Page struct {
	mu     sync.Mutex
	root   *html.Node
	clicks map[*html.Node][]clickHandler

	fetcher Fetcher
	base    *url.URL
	labels  Labels
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer

	listenersMu sync.RWMutex
	listeners   map[string][]func(Event)

	enginesMu sync.Mutex
	engines   []*Engine
	wg        sync.WaitGroup
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithLogger sets the page logger.
func WithLogger(l *zap.Logger) PageOption {
	return func(p *Page) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) PageOption {
	return func(p *Page) { p.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) PageOption {
	return func(p *Page) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithBaseURL resolves relative fetch paths against base.
func WithBaseURL(base *url.URL) PageOption {
	return func(p *Page) { p.base = base }
}

// WithMaxInFlight bounds the number of outstanding requests across all
// engines of the page. Zero leaves them unbounded.
func WithMaxInFlight(n int) PageOption {
	return func(p *Page) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		} else {
			p.sem = nil
		}
	}
}

// WithLabels sets the toggle captions used when a mount declares none.
func WithLabels(collapse, expand string) PageOption {
	return func(p *Page) {
		p.labels = Labels{Collapse: collapse, Expand: expand}.orDefault(p.labels)
	}
}

// NewPage wraps a parsed document.
func NewPage(root *html.Node, fetcher Fetcher, opts ...PageOption) *Page {
	p := &Page{
		root:      root,
		clicks:    make(map[*html.Node][]clickHandler),
		fetcher:   fetcher,
		labels:    Labels{Collapse: defaultCollapseLabel, Expand: defaultExpandLabel},
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("ctxnav/navigation"),
		listeners: make(map[string][]func(Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the document node. Use Do to inspect it safely.
func (p *Page) Root() *html.Node { return p.root }

// Do runs fn with exclusive access to the DOM. fn must not call back into
// methods of p that take the lock.
func (p *Page) Do(fn func(root *html.Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.root)
}

// Render serializes the current DOM.
func (p *Page) Render() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dom.Render(p.root)
}

// On registers a listener for a named signal.
func (p *Page) On(name string, fn func(Event)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners[name] = append(p.listeners[name], fn)
}

func (p *Page) emit(ev Event) {
	p.listenersMu.RLock()
	fns := append([]func(Event){}, p.listeners[ev.Name]...)
	p.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// onClickLocked binds a handler to an element. Caller holds p.mu.
func (p *Page) onClickLocked(el *html.Node, h clickHandler) {
	p.clicks[el] = append(p.clicks[el], h)
}

// Click dispatches a click on el and reports whether any handler ran.
// Engines started by the handlers are tracked by Wait.
func (p *Page) Click(ctx context.Context, el *html.Node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	handlers := p.clicks[el]
	for _, h := range handlers {
		h(ctx, el)
	}
	return len(handlers) > 0
}

// start runs e.Resolve on its own goroutine.
func (p *Page) start(ctx context.Context, e *Engine) {
	p.enginesMu.Lock()
	p.engines = append(p.engines, e)
	p.enginesMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = e.Resolve(ctx)
	}()
}

// Wait blocks until every started engine has settled.
func (p *Page) Wait() {
	p.wg.Wait()
}

// Engines returns every engine started on the page so far.
func (p *Page) Engines() []*Engine {
	p.enginesMu.Lock()
	defer p.enginesMu.Unlock()
	return append([]*Engine(nil), p.engines...)
}

func (p *Page) acquire(ctx context.Context) (func(), error) {
	if p.sem == nil {
		return func() {}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}
