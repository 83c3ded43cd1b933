package navigation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"ctxnav/internal/dom"

	"golang.org/x/net/html"
)

const (
	// MountAttr holds the JSON mount declaration.
	MountAttr = "data-arclight"
	// ControllerAttr/ControllerName identify mount points in the page.
	ControllerAttr = "data-controller"
	ControllerName = "arclight-context-navigation"

	collapseLabelAttr = "data-collapse"
	expandLabelAttr   = "data-expand"
)

// mountPointXPath selects nested mount points below a node.
var mountPointXPath = ".//*[@" + ControllerAttr + "='" + ControllerName + "']"

// MountConfig is the typed form of a mount point's declaration.
type MountConfig struct {
	EADID            string   `json:"eadid"`
	Level            int      `json:"level"`
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	OriginalDocument string   `json:"originalDocument"`
	OriginalParents  []string `json:"originalParents,omitempty"`
	Access           string   `json:"access,omitempty"`
	SearchField      string   `json:"search_field,omitempty"`
	// Parent is the legacy parent declaration. It is carried but never queried.
	Parent string `json:"parent,omitempty"`

	CollapseLabel string `json:"-"`
	ExpandLabel   string `json:"-"`
}

type rawMount struct {
	EADID            *string         `json:"eadid"`
	Level            json.RawMessage `json:"level"`
	Name             *string         `json:"name"`
	Path             *string         `json:"path"`
	OriginalDocument *string         `json:"originalDocument"`
	OriginalParents  json.RawMessage `json:"originalParents"`
	Access           json.RawMessage `json:"access"`
	SearchField      json.RawMessage `json:"search_field"`
	Parent           json.RawMessage `json:"parent"`
}

// IsMountPoint reports whether el is declared as a context navigation mount.
func IsMountPoint(el *html.Node) bool {
	v, ok := dom.Attr(el, ControllerAttr)
	return ok && v == ControllerName
}

// MountPoints lists the mount points below top in document order.
func MountPoints(top *html.Node) []*html.Node {
	return dom.Find(top, mountPointXPath)
}

// ParseMount reads and validates the declaration of a mount element.
func ParseMount(el *html.Node) (MountConfig, error) {
	if !IsMountPoint(el) {
		return MountConfig{}, ErrNotAMountPoint
	}
	raw, ok := dom.Attr(el, MountAttr)
	if !ok {
		return MountConfig{}, invalidMount(MountAttr, "missing")
	}
	cfg, err := ParseMountJSON([]byte(raw))
	if err != nil {
		return MountConfig{}, err
	}
	cfg.CollapseLabel, _ = dom.Attr(el, collapseLabelAttr)
	cfg.ExpandLabel, _ = dom.Attr(el, expandLabelAttr)
	return cfg, nil
}

// ParseMountJSON validates a raw data-arclight object.
func ParseMountJSON(data []byte) (MountConfig, error) {
	var raw rawMount
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return MountConfig{}, invalidMount(MountAttr, "%v", err)
	}

	var cfg MountConfig
	var err error
	if cfg.EADID, err = requiredString("eadid", raw.EADID); err != nil {
		return MountConfig{}, err
	}
	if cfg.Name, err = requiredString("name", raw.Name); err != nil {
		return MountConfig{}, err
	}
	if cfg.Path, err = requiredString("path", raw.Path); err != nil {
		return MountConfig{}, err
	}
	if cfg.OriginalDocument, err = requiredString("originalDocument", raw.OriginalDocument); err != nil {
		return MountConfig{}, err
	}
	if cfg.Level, err = parseLevel(raw.Level); err != nil {
		return MountConfig{}, err
	}
	if cfg.OriginalParents, err = parseParents(raw.OriginalParents); err != nil {
		return MountConfig{}, err
	}
	if cfg.Access, err = optionalScalar("access", raw.Access); err != nil {
		return MountConfig{}, err
	}
	if cfg.SearchField, err = optionalScalar("search_field", raw.SearchField); err != nil {
		return MountConfig{}, err
	}
	if cfg.Parent, err = optionalScalar("parent", raw.Parent); err != nil {
		return MountConfig{}, err
	}
	return cfg, nil
}

func requiredString(field string, v *string) (string, error) {
	if v == nil {
		return "", invalidMount(field, "missing")
	}
	if *v == "" {
		return "", invalidMount(field, "empty")
	}
	return *v, nil
}

// parseLevel accepts a JSON integer or a numeric string.
func parseLevel(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, invalidMount("level", "missing")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, invalidMount("level", "not an integer: %s", raw)
		}
		if n, err = strconv.Atoi(strings.TrimSpace(s)); err != nil {
			return 0, invalidMount("level", "not an integer: %q", s)
		}
	}
	if n < 0 {
		return 0, invalidMount("level", "negative: %d", n)
	}
	return n, nil
}

// parseParents keeps nil for an absent or null chain.
func parseParents(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var parents []string
	if err := json.Unmarshal(raw, &parents); err != nil {
		return nil, invalidMount("originalParents", "expected an array of strings: %v", err)
	}
	if parents == nil {
		parents = []string{}
	}
	return parents, nil
}

// optionalScalar renders strings, numbers and booleans as query values.
func optionalScalar(field string, raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", invalidMount(field, "%v", err)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		if !t {
			return "", nil
		}
		return "true", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", invalidMount(field, "expected a scalar, got %s", raw)
	}
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
