package fixture

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

// Request is a decoded collection context query.
type Request struct {
	Level            int
	Collection       string
	Parent           string
	OriginalDocument string
	OriginalParents  []string
	Access           string
	SearchField      string
}

// mountDecl is the data-arclight object written on nested mount points.
type mountDecl struct {
	EADID            string   `json:"eadid"`
	Level            int      `json:"level"`
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	OriginalDocument string   `json:"originalDocument"`
	OriginalParents  []string `json:"originalParents,omitempty"`
	Access           string   `json:"access,omitempty"`
	SearchField      string   `json:"search_field,omitempty"`
}

type articleView struct {
	ID          string
	Title       string
	Online      bool
	HasChildren bool
	Mount       string
}

type mountView struct {
	Decl          string
	CollapseLabel string
	ExpandLabel   string
}

var fragmentTmpl = template.Must(template.New("fragment").Parse(`<div id="documents" class="documents-collection_context">
{{- range .Articles}}
<article class="document">
<li class="al-collection-context" id="{{.ID}}-context" data-document-id="{{.ID}}">
<div class="documentHeader">
{{- if .HasChildren}}<a class="al-toggle-view-children" href="#collapsible-hierarchy-{{.ID}}" aria-expanded="false">+</a>{{end -}}
<span class="document-title">{{.Title}}</span>
{{- if .Online}}<span class="al-online-content-icon">online</span>{{end -}}
</div>
{{- if .HasChildren}}
<div id="collapsible-hierarchy-{{.ID}}" class="collapse al-collection-context-collapsible">
<div data-controller="arclight-context-navigation" data-arclight="{{.Mount}}" data-collapse="{{$.CollapseLabel}}" data-expand="{{$.ExpandLabel}}"></div>
</div>
{{- end}}
</li>
</article>
{{- end}}
</div>`))

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<main id="main-container">
<h1>{{.Title}}</h1>
<div id="collection-context" class="al-sidebar">
<div data-controller="arclight-context-navigation" data-arclight="{{.Mount.Decl}}" data-collapse="{{.Mount.CollapseLabel}}" data-expand="{{.Mount.ExpandLabel}}"></div>
</div>
</main>
</body>
</html>`))

// Labels are the toggle captions written on mount points.
type Labels struct {
	Collapse string
	Expand   string
}

func encodeDecl(d mountDecl) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode mount declaration: %w", err)
	}
	return string(data), nil
}

// RenderFragment renders the #documents fragment answering req.
func RenderFragment(c *Collection, req Request, path string, labels Labels) (string, error) {
	onlineOnly := req.Access != "" && req.Access != "false"
	var views []articleView
	for _, n := range c.Query(req.Level, req.Parent, onlineOnly) {
		v := articleView{ID: n.ID(), Title: n.Title, Online: n.Online, HasChildren: len(n.Children) > 0}
		if v.HasChildren {
			decl, err := encodeDecl(mountDecl{
				EADID:            c.EADID,
				Level:            n.level + 1,
				Name:             c.Title,
				Path:             path,
				OriginalDocument: n.ID(),
				OriginalParents:  req.OriginalParents,
				Access:           req.Access,
				SearchField:      req.SearchField,
			})
			if err != nil {
				return "", err
			}
			v.Mount = decl
		}
		views = append(views, v)
	}

	var sb strings.Builder
	err := fragmentTmpl.Execute(&sb, struct {
		Articles      []articleView
		CollapseLabel string
		ExpandLabel   string
	}{views, labels.Collapse, labels.Expand})
	if err != nil {
		return "", fmt.Errorf("failed to render fragment: %w", err)
	}
	return sb.String(), nil
}

// RenderPage renders a viewing page for id, declaring one level-1 mount point
// seeded with the document's ancestor chain.
func RenderPage(c *Collection, n *Node, path string, labels Labels) (string, error) {
	decl := mountDecl{
		EADID:            c.EADID,
		Level:            1,
		Name:             c.Title,
		Path:             path,
		OriginalDocument: c.EADID,
	}
	title := c.Title
	if n != nil {
		decl.OriginalDocument = n.ID()
		decl.OriginalParents = n.Ancestors()
		title = n.Title
	}
	encoded, err := encodeDecl(decl)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	err = pageTmpl.Execute(&sb, struct {
		Title string
		Mount mountView
	}{title, mountView{Decl: encoded, CollapseLabel: labels.Collapse, ExpandLabel: labels.Expand}})
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return sb.String(), nil
}
