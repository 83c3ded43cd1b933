package fixture

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"ctxnav/internal/dom"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := NewServer(loadAlpha(t), Options{Registry: reg, CacheSize: 8})
	require.NoError(t, err)
	return s, s.Handler(), reg
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func catalogQuery(level, parent string, parents ...string) string {
	q := url.Values{}
	q.Set("f[component_level_isim][]", level)
	q.Set("f[collection_sim][]", "Alpha Papers")
	q.Set("f[parent_ssi][]", parent)
	q.Set("original_document", "abc214")
	q.Set("view", "collection_context")
	for i, p := range parents {
		q.Set("original_parents["+string(rune('0'+i))+"]", p)
	}
	return CatalogPath + "?per_page=100&" + q.Encode()
}

func TestDecodeRequest(t *testing.T) {
	q, err := url.ParseQuery("f%5Bcomponent_level_isim%5D%5B%5D=2&f%5Bcollection_sim%5D%5B%5D=Alpha+Papers&f%5Bparent_ssi%5D%5B%5D=2" +
		"&original_parents%5B1%5D=2&original_parents%5B0%5D=abc&original_parents%5B2%5D=21&search_field=all_fields")
	require.NoError(t, err)

	req, err := DecodeRequest(q)
	require.NoError(t, err)
	assert.Equal(t, Request{
		Level:           2,
		Collection:      "Alpha Papers",
		Parent:          "2",
		OriginalParents: []string{"abc", "2", "21"},
		SearchField:     "all_fields",
	}, req)

	_, err = DecodeRequest(url.Values{"f[component_level_isim][]": {"x"}})
	assert.Error(t, err)

	_, err = DecodeRequest(url.Values{"f[component_level_isim][]": {"1"}, "original_parents[z]": {"a"}})
	assert.Error(t, err)
}

func TestServer_Catalog(t *testing.T) {
	_, h, reg := newTestServer(t)

	rec := get(h, catalogQuery("2", "2", "abc", "2", "21"))
	require.Equal(t, http.StatusOK, rec.Code)
	root, err := dom.ParseString(rec.Body.String())
	require.NoError(t, err)

	items := dom.ByClass(root, "li", "al-collection-context")
	require.Len(t, items, 4)
	first, _ := dom.Attr(items[0], "data-document-id")
	assert.Equal(t, "abc21", first)

	// only nodes with children carry a control and a nested mount
	controls := dom.ByClass(root, "a", "al-toggle-view-children")
	require.Len(t, controls, 1)
	href, _ := dom.Attr(controls[0], "href")
	assert.Equal(t, "#collapsible-hierarchy-abc21", href)

	area := dom.ByID(root, "collapsible-hierarchy-abc21")
	require.NotNil(t, area)
	mount := dom.FirstWithAttr(area, "data-arclight")
	require.NotNil(t, mount)
	decl, _ := dom.Attr(mount, "data-arclight")
	assert.Contains(t, decl, `"level":3`)
	assert.Contains(t, decl, `"originalDocument":"abc21"`)
	assert.Contains(t, decl, `"originalParents":["abc","2","21"]`)
	assert.Contains(t, decl, `"path":"/catalog?per_page=100"`)

	// second identical request is served from the cache
	rec = get(h, catalogQuery("2", "2", "abc", "2", "21"))
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := testutil.GatherAndCount(reg, "ctxnav_fixture_cache_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP ctxnav_fixture_cache_total Fragment cache lookups by result
# TYPE ctxnav_fixture_cache_total counter
ctxnav_fixture_cache_total{result="hit"} 1
ctxnav_fixture_cache_total{result="miss"} 1
`), "ctxnav_fixture_cache_total"))
}

func TestServer_Errors(t *testing.T) {
	_, h, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, get(h, CatalogPath+"?x=1").Code)

	q := url.Values{"f[component_level_isim][]": {"1"}, "f[collection_sim][]": {"Nobody"}}
	assert.Equal(t, http.StatusNotFound, get(h, CatalogPath+"?"+q.Encode()).Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/page/abc999").Code)
}

func TestServer_PageAndHealth(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := get(h, "/page/abc214")
	require.Equal(t, http.StatusOK, rec.Code)
	root, err := dom.ParseString(rec.Body.String())
	require.NoError(t, err)
	mount := dom.FirstWithAttr(dom.ByID(root, "collection-context"), "data-arclight")
	require.NotNil(t, mount)
	decl, _ := dom.Attr(mount, "data-arclight")
	assert.Contains(t, decl, `"level":1`)
	assert.Contains(t, decl, `"originalDocument":"abc214"`)
	assert.Contains(t, decl, `"originalParents":["abc","2","21"]`)
	collapse, _ := dom.Attr(mount, "data-collapse")
	assert.Equal(t, "Collapse", collapse)

	rec = get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ctxnav_fixture_requests_total")
}

func TestServer_SetTreePurgesCache(t *testing.T) {
	s, h, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, get(h, catalogQuery("1", "abc")).Code)
	assert.Equal(t, 1, s.cache.Len())

	tree, err := ParseTree([]byte("collections: [{eadid: abc, title: Alpha Papers, nodes: [{ref: '9', title: Only}]}]"))
	require.NoError(t, err)
	s.SetTree(tree)
	assert.Zero(t, s.cache.Len())

	rec := get(h, catalogQuery("1", "abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-document-id="abc9"`)
	assert.NotContains(t, rec.Body.String(), "abc1")
}

func TestServer_StaleRenderIsNotCached(t *testing.T) {
	s, _, _ := newTestServer(t)
	old := s.currentTree()

	tree, err := ParseTree([]byte("collections: [{eadid: abc, title: Alpha Papers, nodes: [{ref: '9', title: Only}]}]"))
	require.NoError(t, err)
	s.SetTree(tree)

	s.remember(old, "k", "rendered from the old tree")
	assert.Zero(t, s.cache.Len())

	s.remember(tree, "k", "fresh")
	assert.Equal(t, 1, s.cache.Len())
}

func TestServer_ConcurrentSetTreeServesLatest(t *testing.T) {
	s, h, _ := newTestServer(t)
	tree, err := ParseTree([]byte("collections: [{eadid: abc, title: Alpha Papers, nodes: [{ref: '9', title: Only}]}]"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				get(h, catalogQuery("1", "abc"))
			}
		}()
	}
	s.SetTree(tree)
	wg.Wait()

	rec := get(h, catalogQuery("1", "abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-document-id="abc9"`)
	assert.NotContains(t, rec.Body.String(), `data-document-id="abc1"`)
}
