package navigation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query keys understood by the collection context endpoint.
const (
	ParamLevel            = "f[component_level_isim][]"
	ParamCollection       = "f[collection_sim][]"
	ParamParent           = "f[parent_ssi][]"
	ParamOriginalDocument = "original_document"
	ParamView             = "view"
	ParamAccess           = "f[has_online_content_ssim][]"
	ParamSearchField      = "search_field"

	// ViewCollectionContext is the fixed context-view marker.
	ViewCollectionContext = "collection_context"
)

// ParentsParam names the positional ancestor-chain entry for index i.
func ParentsParam(i int) string {
	return "original_parents[" + strconv.Itoa(i) + "]"
}

// RequestContext is what one engine instance knows when it builds its query.
// Parents is the chain passed to the engine (nil after a manual drill-down);
// Mount is the declaration read from the mount point.
type RequestContext struct {
	Mount            MountConfig
	Parents          []string
	OriginalDocument string
}

// NewRequestContext pairs a mount declaration with the passed-through chain and
// viewed document. An empty document falls back to the declared one.
func NewRequestContext(mount MountConfig, parents []string, originalDocument string) RequestContext {
	if originalDocument == "" {
		originalDocument = mount.OriginalDocument
	}
	return RequestContext{Mount: mount, Parents: parents, OriginalDocument: originalDocument}
}

func (rc RequestContext) chainAt(i int) (string, bool) {
	if rc.Parents == nil || i < 0 || i >= len(rc.Parents) {
		return "", false
	}
	v := rc.Parents[i]
	return v, v != ""
}

// TargetID is the node to locate in an ancestors batch.
func (rc RequestContext) TargetID() string {
	if p, ok := rc.chainAt(rc.Mount.Level); ok {
		return rc.Mount.EADID + p
	}
	return rc.Mount.OriginalDocument
}

// RequestParent is the parent identity the query is scoped under.
func (rc RequestContext) RequestParent() string {
	if p, ok := rc.chainAt(rc.Mount.Level - 1); ok {
		return p
	}
	return strings.Replace(rc.Mount.OriginalDocument, rc.Mount.EADID, "", 1)
}

// Query returns the encoded query string. Keys keep the endpoint's order.
func (rc RequestContext) Query() string {
	var q queryBuilder
	q.add(ParamLevel, strconv.Itoa(rc.Mount.Level))
	q.add(ParamCollection, rc.Mount.Name)
	q.add(ParamParent, rc.RequestParent())
	q.add(ParamOriginalDocument, rc.OriginalDocument)
	q.add(ParamView, ViewCollectionContext)
	if rc.Mount.Access != "" {
		q.add(ParamAccess, rc.Mount.Access)
	}
	if rc.Mount.SearchField != "" {
		q.add(ParamSearchField, rc.Mount.SearchField)
	}
	for i, p := range rc.Mount.OriginalParents {
		q.add(ParentsParam(i), p)
	}
	return q.String()
}

// URL joins the declared path and the query, resolving relative paths
// against base when one is given.
func (rc RequestContext) URL(base *url.URL) (string, error) {
	raw := rc.Mount.Path + "&" + rc.Query()
	if base == nil {
		return raw, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid fetch path %q: %w", rc.Mount.Path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

type queryBuilder struct {
	parts []string
}

func (q *queryBuilder) add(key, val string) {
	q.parts = append(q.parts, url.QueryEscape(key)+"="+url.QueryEscape(val))
}

func (q *queryBuilder) String() string {
	return strings.Join(q.parts, "&")
}
