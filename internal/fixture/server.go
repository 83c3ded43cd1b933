package fixture

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CatalogPath is the route answering collection context queries.
const CatalogPath = "/catalog"

// Options configures a Server.
type Options struct {
	// MountPath is the path written into nested mount declarations.
	MountPath string
	CacheSize int
	Labels    Labels
	Logger    *zap.Logger
	Registry  *prometheus.Registry
}

// Server answers collection context queries from a Tree.
type Server struct {
	mu    sync.RWMutex
	tree  *Tree
	cache *lru.Cache[string, string]

	opts     Options
	logger   *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	cacheHit *prometheus.CounterVec
}

// NewServer builds a server over tree.
func NewServer(tree *Tree, opts Options) (*Server, error) {
	if opts.MountPath == "" {
		opts.MountPath = CatalogPath + "?per_page=100"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.Labels.Collapse == "" {
		opts.Labels.Collapse = "Collapse"
	}
	if opts.Labels.Expand == "" {
		opts.Labels.Expand = "Expand"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	f := promauto.With(opts.Registry)
	return &Server{
		tree:     tree,
		cache:    cache,
		opts:     opts,
		logger:   opts.Logger,
		registry: opts.Registry,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxnav_fixture_requests_total",
			Help: "Fixture requests by route and status",
		}, []string{"route", "status"}),
		cacheHit: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxnav_fixture_cache_total",
			Help: "Fragment cache lookups by result",
		}, []string{"result"}),
	}, nil
}

// SetTree swaps the dataset and drops every memoized fragment.
func (s *Server) SetTree(tree *Tree) {
	s.mu.Lock()
	s.tree = tree
	s.cache.Purge()
	s.mu.Unlock()
	s.logger.Info("Fixture tree replaced", zap.Int("collections", len(tree.Collections)))
}

func (s *Server) currentTree() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// remember caches a fragment rendered from tree unless the tree has since
// been replaced.
func (s *Server) remember(tree *Tree, key, body string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tree == tree {
		s.cache.Add(key, body)
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.GET(CatalogPath, s.handleCatalog)
	r.GET("/page/:id", s.handlePage)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Debug("Fixture request",
			zap.String("route", route),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleCatalog(c *gin.Context) {
	req, err := DecodeRequest(c.Request.URL.Query())
	if err != nil {
		c.String(http.StatusBadRequest, "%s", err.Error())
		return
	}
	tree := s.currentTree()
	coll, ok := tree.Collection(req.Collection)
	if !ok {
		c.String(http.StatusNotFound, "unknown collection %q", req.Collection)
		return
	}

	key := canonicalKey(c.Request.URL.Query())
	if body, ok := s.cache.Get(key); ok {
		s.cacheHit.WithLabelValues("hit").Inc()
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
		return
	}
	s.cacheHit.WithLabelValues("miss").Inc()

	body, err := RenderFragment(coll, req, s.opts.MountPath, s.opts.Labels)
	if err != nil {
		s.logger.Error("Failed to render fragment", zap.Error(err))
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	s.remember(tree, key, body)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) handlePage(c *gin.Context) {
	coll, node, ok := s.currentTree().Find(c.Param("id"))
	if !ok {
		c.String(http.StatusNotFound, "unknown document %q", c.Param("id"))
		return
	}
	body, err := RenderPage(coll, node, s.opts.MountPath, s.opts.Labels)
	if err != nil {
		s.logger.Error("Failed to render page", zap.Error(err))
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

const parentsPrefix = "original_parents["

// DecodeRequest reads a collection context query.
func DecodeRequest(q url.Values) (Request, error) {
	req := Request{
		Collection:       q.Get("f[collection_sim][]"),
		Parent:           q.Get("f[parent_ssi][]"),
		OriginalDocument: q.Get("original_document"),
		Access:           q.Get("f[has_online_content_ssim][]"),
		SearchField:      q.Get("search_field"),
	}
	level, err := strconv.Atoi(q.Get("f[component_level_isim][]"))
	if err != nil {
		return Request{}, errBadQuery("f[component_level_isim][]", q.Get("f[component_level_isim][]"))
	}
	req.Level = level

	type indexed struct {
		i   int
		val string
	}
	var parents []indexed
	for k, vs := range q {
		if !strings.HasPrefix(k, parentsPrefix) || !strings.HasSuffix(k, "]") || len(vs) == 0 {
			continue
		}
		i, err := strconv.Atoi(k[len(parentsPrefix) : len(k)-1])
		if err != nil || i < 0 {
			return Request{}, errBadQuery(k, vs[0])
		}
		parents = append(parents, indexed{i, vs[0]})
	}
	sort.Slice(parents, func(a, b int) bool { return parents[a].i < parents[b].i })
	for _, p := range parents {
		req.OriginalParents = append(req.OriginalParents, p.val)
	}
	return req, nil
}

// canonicalKey orders query keys so equal queries share a cache entry.
func canonicalKey(q url.Values) string {
	return q.Encode()
}
