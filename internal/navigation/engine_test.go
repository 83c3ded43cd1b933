package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ctxnav/internal/dom"
	"ctxnav/internal/fixture"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

const alphaTree = `
collections:
  - eadid: abc
    title: Alpha Papers
    nodes:
      - ref: "1"
        title: Correspondence
        children:
          - {ref: "11", title: Incoming letters}
          - {ref: "12", title: Outgoing letters}
      - ref: "2"
        title: Writings
        children:
          - ref: "21"
            title: Drafts
            children:
              - {ref: "211", title: Early drafts}
              - {ref: "212", title: Second drafts}
              - {ref: "213", title: Galley proofs}
              - {ref: "214", title: Final manuscript}
          - {ref: "22", title: Lectures}
          - {ref: "23", title: Essays}
          - {ref: "24", title: Reviews}
      - {ref: "3", title: Photographs}
      - {ref: "4", title: Audiovisual, online: true}
`

type alphaSite struct {
	tree    *fixture.Tree
	server  *fixture.Server
	fetcher Fetcher
}

func newAlphaSite(t *testing.T) *alphaSite {
	t.Helper()
	tree, err := fixture.ParseTree([]byte(alphaTree))
	require.NoError(t, err)
	srv, err := fixture.NewServer(tree, fixture.Options{Labels: fixture.Labels{Collapse: "Less", Expand: "More"}})
	require.NoError(t, err)
	return &alphaSite{tree: tree, server: srv, fetcher: handlerFetcher(srv.Handler())}
}

func (s *alphaSite) page(t *testing.T, id string, opts ...PageOption) *Page {
	t.Helper()
	coll, node, ok := s.tree.Find(id)
	require.True(t, ok, id)
	body, err := fixture.RenderPage(coll, node, fixture.CatalogPath+"?per_page=100", fixture.Labels{Collapse: "Less", Expand: "More"})
	require.NoError(t, err)
	root, err := dom.ParseString(body)
	require.NoError(t, err)
	return NewPage(root, s.fetcher, opts...)
}

func byLevel(engines []*Engine) map[int][]*Engine {
	out := make(map[int][]*Engine)
	for _, e := range engines {
		lvl := e.Context().Mount.Level
		out[lvl] = append(out[lvl], e)
	}
	return out
}

// contains reports whether n sits at or below top.
func contains(top, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == top {
			return true
		}
	}
	return false
}

func viewChildrenControl(p *Page, id string) *html.Node {
	var ctl *html.Node
	p.Do(func(root *html.Node) {
		for _, a := range dom.ByClass(root, "a", ViewChildrenClass) {
			if href, _ := dom.Attr(a, "href"); href == "#collapsible-hierarchy-"+id {
				ctl = a
				return
			}
		}
	})
	return ctl
}

func TestEngine_ResolvesAncestorChain(t *testing.T) {
	site := newAlphaSite(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := site.page(t, "abc214", WithMetrics(metrics), WithLogger(zaptest.NewLogger(t)))

	var (
		mu     sync.Mutex
		events []string
	)
	p.On(EventContainsElements, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Engine.Context().Mount.OriginalDocument)
	})

	engines, err := Bootstrap(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, engines, 1)
	p.Wait()

	all := p.Engines()
	require.Len(t, all, 3)
	for _, e := range all {
		assert.Equal(t, StateRendered, e.State(), e.Context().Mount.OriginalDocument)
		assert.NoError(t, e.Err())
		assert.Equal(t, "abc214", e.Context().OriginalDocument)
	}
	assert.ElementsMatch(t, []string{"abc214", "abc2", "abc21"}, events)

	levels := byLevel(all)
	l1, l2, l3 := levels[1][0], levels[2][0], levels[3][0]

	assert.Equal(t, OutcomeAncestors, l1.Outcome())
	assert.Nil(t, l1.Toggle())
	assert.Equal(t, "abc2", l1.Context().TargetID())

	assert.Equal(t, OutcomeAncestors, l2.Outcome())
	assert.Equal(t, "abc21", l2.Context().TargetID())
	assert.Equal(t, "2", l2.Context().RequestParent())

	assert.Equal(t, OutcomeSiblings, l3.Outcome())
	require.NotNil(t, l3.Toggle())
	assert.Equal(t, "More", l3.Toggle().Label())

	p.Do(func(root *html.Node) {
		assert.Equal(t, []string{"abc1", "abc2", "abc3", "abc4"}, listIDs(l1.List()))
		assert.Equal(t, []string{"abc21", "abc22", "abc23", "abc24"}, listIDs(l2.List()))
		assert.Equal(t, []string{"abc211", "abc212", "abc213", "abc214"}, listIDs(l3.List()))

		assert.True(t, collapsed(itemByID(root, "abc211")))
		assert.True(t, collapsed(itemByID(root, "abc212")))
		assert.False(t, collapsed(itemByID(root, "abc213")))
		assert.True(t, dom.HasClass(itemByID(root, "abc214"), HighlightClass))

		assert.Empty(t, dom.ByClass(root, "*", PlaceholderClass))
		resolved := dom.ByAttrValue(root, ResolvedAttr, "true")
		assert.Len(t, resolved, 3)
		// the level-1 list sits in the sidebar mount
		assert.True(t, contains(dom.ByID(root, "collection-context"), l1.List()))
		// the level-2 list is nested under the surfaced target
		assert.True(t, contains(itemByID(root, "abc2"), l2.List()))
		assert.True(t, contains(itemByID(root, "abc21"), l3.List()))
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.engines))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.requests))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.reconciliations.WithLabelValues("ancestors")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reconciliations.WithLabelValues("siblings")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inFlight))
}

func TestEngine_ToggleClickThroughPage(t *testing.T) {
	site := newAlphaSite(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	p := site.page(t, "abc214", WithMetrics(metrics))
	_, err := Bootstrap(context.Background(), p)
	require.NoError(t, err)
	p.Wait()

	l3 := byLevel(p.Engines())[3][0]
	toggle := l3.Toggle()
	require.NotNil(t, toggle)

	require.True(t, p.Click(context.Background(), toggle.Element()))
	p.Do(func(root *html.Node) {
		assert.Equal(t, "Less", toggle.Label())
		assert.False(t, collapsed(itemByID(root, "abc211")))
		assert.False(t, collapsed(itemByID(root, "abc212")))
	})

	require.True(t, p.Click(context.Background(), toggle.Element()))
	p.Do(func(root *html.Node) {
		assert.Equal(t, "More", toggle.Label())
		assert.True(t, collapsed(itemByID(root, "abc211")))
		assert.True(t, collapsed(itemByID(root, "abc212")))
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.toggleClicks))
}

func TestEngine_DrillDownDropsChain(t *testing.T) {
	site := newAlphaSite(t)
	p := site.page(t, "abc214")
	_, err := Bootstrap(context.Background(), p)
	require.NoError(t, err)
	p.Wait()
	require.Len(t, p.Engines(), 3)

	ctl := viewChildrenControl(p, "abc1")
	require.NotNil(t, ctl)
	require.True(t, p.Click(context.Background(), ctl))
	p.Wait()

	all := p.Engines()
	require.Len(t, all, 4)
	drill := all[3]
	assert.Equal(t, StateRendered, drill.State())
	assert.Nil(t, drill.Context().Parents)
	assert.Equal(t, "1", drill.Context().RequestParent())
	assert.Equal(t, "abc214", drill.Context().OriginalDocument)
	assert.Equal(t, OutcomeFlat, drill.Outcome())
	p.Do(func(*html.Node) {
		assert.Equal(t, []string{"abc11", "abc12"}, listIDs(drill.List()))
	})

	// a resolved area is not fetched again
	require.True(t, p.Click(context.Background(), ctl))
	p.Wait()
	assert.Len(t, p.Engines(), 4)

	// the area under the surfaced ancestor was resolved by recursion
	ctl = viewChildrenControl(p, "abc2")
	require.NotNil(t, ctl)
	require.True(t, p.Click(context.Background(), ctl))
	p.Wait()
	assert.Len(t, p.Engines(), 4)
}

func TestEngine_StallKeepsPlaceholder(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := &staticFetcher{err: errors.New("connection refused")}
	p, mount := mustPage(t, `{"eadid":"abc","level":1,"name":"Alpha","path":"/catalog?x=1","originalDocument":"abc1"}`, f, WithMetrics(metrics))

	var fired atomic.Int32
	p.On(EventContainsElements, func(Event) { fired.Add(1) })

	e, err := NewEngine(p, mount, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StateConstructed, e.State())

	err = e.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateStalled, e.State())
	assert.ErrorIs(t, e.Err(), ErrFetch)
	assert.Equal(t, OutcomeNone, e.Outcome())
	assert.Zero(t, fired.Load())

	p.Do(func(root *html.Node) {
		assert.Len(t, dom.ByClass(dom.ByID(root, "container"), "div", PlaceholderClass), 3)
		_, resolved := dom.Attr(dom.ByID(root, "container"), ResolvedAttr)
		assert.False(t, resolved)
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("stalled")))

	assert.ErrorIs(t, e.Resolve(context.Background()), errAlreadyStarted)
}

func TestEngine_UnexpectedStatusStalls(t *testing.T) {
	site := newAlphaSite(t)
	p, mount := mustPage(t, `{"eadid":"abc","level":1,"name":"No Such Collection","path":"/catalog?per_page=100","originalDocument":"abc1"}`, site.fetcher)
	e, err := NewEngine(p, mount, nil, "")
	require.NoError(t, err)

	err = e.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateStalled, e.State())
}

func TestEngine_MalformedBatchFails(t *testing.T) {
	body := `<div id="documents">
		<article><li class="al-collection-context" data-document-id="abc1"></li></article>
		<article><div class="no-identity"></div></article>
	</div>`
	metrics := NewMetrics(prometheus.NewRegistry())
	p, mount := mustPage(t, `{"eadid":"abc","level":1,"name":"Alpha","path":"/catalog?x=1","originalDocument":"abc1"}`, &staticFetcher{body: body}, WithMetrics(metrics))

	e, err := NewEngine(p, mount, nil, "")
	require.NoError(t, err)
	err = e.Resolve(context.Background())

	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Index)
	assert.Equal(t, StateFailed, e.State())
	assert.Nil(t, e.List())
	p.Do(func(root *html.Node) {
		assert.Len(t, dom.ByClass(root, "div", PlaceholderClass), 3)
		assert.Nil(t, dom.FirstElementChild(mount))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("integrity")))
}

func TestEngine_RequestURLAndLabels(t *testing.T) {
	urls := make(chan string, 1)
	f := &staticFetcher{body: batchHTML("abc1", "abc2", "abc3"), urls: urls}
	p, mount := mustPage(t, `{"eadid":"abc","level":1,"name":"Alpha","path":"/catalog?x=1","originalDocument":"abc3","originalParents":["abc"]}`, f)

	e, err := NewEngine(p, mount, []string{"abc"}, "")
	require.NoError(t, err)
	require.NoError(t, e.Resolve(context.Background()))

	got := <-urls
	assert.True(t, strings.HasPrefix(got, "/catalog?x=1&"), got)
	assert.Contains(t, got, "original_document=abc3")
	assert.Contains(t, got, "f%5Bparent_ssi%5D%5B%5D=abc")

	assert.Equal(t, OutcomeSiblings, e.Outcome())
	require.NotNil(t, e.Toggle())
	// labels come from the mount point
	assert.Equal(t, "More", e.Toggle().Label())
	e.Toggle().Click()
	assert.Equal(t, "Less", e.Toggle().Label())
}

func TestEngine_RejectsBadMounts(t *testing.T) {
	p, mount := mustPage(t, `{"eadid":"abc","level":1,"name":"Alpha","path":"/p","originalDocument":"abc1"}`, &staticFetcher{})

	_, err := NewEngine(p, dom.ByID(p.Root(), "container"), nil, "")
	assert.ErrorIs(t, err, ErrNotAMountPoint)

	p.Do(func(*html.Node) { dom.Detach(mount) })
	_, err = NewEngine(p, mount, nil, "")
	assert.ErrorIs(t, err, ErrInvalidMount)

	bad, _ := mustPage(t, `{"eadid":"abc","level":1}`, &staticFetcher{})
	_, err = Bootstrap(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidMount)
	bad.Wait()
	assert.Empty(t, bad.Engines())
}

func TestPage_MaxInFlight(t *testing.T) {
	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	f := FetcherFunc(func(ctx context.Context, url string) (string, error) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return batchHTML("abc1"), nil
	})

	var sb strings.Builder
	sb.WriteString(`<html><body>`)
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&sb, `<div><div data-controller="arclight-context-navigation" data-arclight='{"eadid":"abc","level":1,"name":"Alpha","path":"/p?i=%d","originalDocument":"abc1"}'></div></div>`, i)
	}
	sb.WriteString(`</body></html>`)
	root, err := dom.ParseString(sb.String())
	require.NoError(t, err)

	p := NewPage(root, f, WithMaxInFlight(1))
	engines, err := Bootstrap(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, engines, 4)
	p.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, map[State]int{StateRendered: 4}, Summary(engines))
}

func TestPage_CancelledWhileQueued(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := FetcherFunc(func(ctx context.Context, url string) (string, error) {
		close(entered)
		<-release
		return batchHTML("abc1"), nil
	})

	root, err := dom.ParseString(`<div><div id="a" data-controller="arclight-context-navigation" data-arclight='{"eadid":"abc","level":1,"name":"A","path":"/p","originalDocument":"abc1"}'></div></div>
		<div><div id="b" data-controller="arclight-context-navigation" data-arclight='{"eadid":"abc","level":1,"name":"B","path":"/p","originalDocument":"abc1"}'></div></div>`)
	require.NoError(t, err)
	p := NewPage(root, f, WithMaxInFlight(1))

	first, err := NewEngine(p, dom.ByID(root, "a"), nil, "")
	require.NoError(t, err)
	second, err := NewEngine(p, dom.ByID(root, "b"), nil, "")
	require.NoError(t, err)

	first.Start(context.Background())
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second.Start(ctx)
	<-second.Done()
	assert.Equal(t, StateStalled, second.State())
	assert.ErrorIs(t, second.Err(), context.Canceled)

	close(release)
	p.Wait()
	assert.Equal(t, StateRendered, first.State())
}

func TestEngine_OversizedBatchStalls(t *testing.T) {
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("coll1item%d", i)
	}
	body := batchHTML(ids...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	f := &HTTPFetcher{Client: srv.Client(), MaxBodyBytes: int64(len(body) / 2)}
	p, mount := mustPage(t, `{"eadid":"coll1","level":1,"name":"Coll","path":"/catalog?x=1","originalDocument":"coll1item49"}`, f, WithBaseURL(base))

	e, err := NewEngine(p, mount, nil, "")
	require.NoError(t, err)
	err = e.Resolve(context.Background())

	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateStalled, e.State())
	assert.Equal(t, OutcomeNone, e.Outcome())
	p.Do(func(root *html.Node) {
		assert.Len(t, dom.ByClass(root, "div", PlaceholderClass), 3)
		assert.Empty(t, dom.ByClass(root, "li", HighlightClass))
	})
}
