package pagequery

import (
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// style is the subset of the computed style of an element the engine
// relies on. It is derived from the inline style attribute, the hidden
// attribute and user agent defaults.
type style map[string]string

// uaHiddenTags are not rendered by default.
var uaHiddenTags = []atom.Atom{
	atom.Head, atom.Script, atom.Style, atom.Template, atom.Title,
	atom.Meta, atom.Link, atom.Base, atom.Noscript, atom.Datalist,
}

// inlineStyle parses the style attribute of n. Invalid declarations are
// ignored, !important declarations win over later ones.
func inlineStyle(n *html.Node) style {
	s := make(style)
	v, ok := attr(n, "style")
	if !ok || strings.TrimSpace(v) == "" {
		return s
	}
	// the last declaration loses its value without a terminating semicolon
	v = strings.TrimSpace(v)
	if !strings.HasSuffix(v, ";") {
		v += ";"
	}
	// declarations before a syntax error are kept
	decls, _ := parser.NewParser(v).ParseDeclarations()
	important := make(map[string]bool)
	for _, d := range decls {
		prop := strings.ToLower(d.Property)
		if important[prop] && !d.Important {
			continue
		}
		s[prop] = strings.TrimSpace(d.Value)
		important[prop] = d.Important
	}
	return s
}

// computedStyle returns the style of n with the hidden attribute and user
// agent defaults applied below the inline declarations.
func computedStyle(n *html.Node) style {
	s := inlineStyle(n)
	if _, ok := s["display"]; !ok {
		switch {
		case isTag(n, uaHiddenTags...):
			s["display"] = "none"
		case hasAttr(n, "hidden"):
			s["display"] = "none"
		case isTag(n, atom.Input) && inputType(n) == "hidden":
			s["display"] = "none"
		}
	}
	return s
}

// suppressed reports whether rendering of n, and hence of its subtree, is
// suppressed by its style.
func (s style) suppressed() bool {
	if strings.EqualFold(s["display"], "none") {
		return true
	}
	switch strings.ToLower(s["visibility"]) {
	case "hidden", "collapse":
		return true
	}
	return false
}

// px returns the pixel value of a length property, or def.
func (s style) px(prop string, def float64) float64 {
	v := strings.TrimSuffix(strings.ToLower(s[prop]), "px")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// BorderWidth is the left and top border width of an element, in pixels.
type BorderWidth struct {
	Left int64 `json:"left"`
	Top  int64 `json:"top"`
}

// borderWidth resolves the left and top border widths from the border,
// border-width and border-{left,top}-width declarations.
func (s style) borderWidth() BorderWidth {
	var left, top string
	if v, ok := s["border"]; ok {
		left, top = borderShorthandWidth(v), borderShorthandWidth(v)
	}
	if v, ok := s["border-width"]; ok {
		f := strings.Fields(v)
		switch len(f) {
		case 1:
			left, top = f[0], f[0]
		case 2, 3:
			left, top = f[1], f[0]
		case 4:
			left, top = f[3], f[0]
		}
	}
	if v, ok := s["border-left"]; ok {
		left = borderShorthandWidth(v)
	}
	if v, ok := s["border-top"]; ok {
		top = borderShorthandWidth(v)
	}
	if v, ok := s["border-left-width"]; ok {
		left = v
	}
	if v, ok := s["border-top-width"]; ok {
		top = v
	}
	return BorderWidth{Left: parseLength(left), Top: parseLength(top)}
}

func borderShorthandWidth(v string) string {
	for _, f := range strings.Fields(v) {
		if f[0] >= '0' && f[0] <= '9' {
			return f
		}
		switch f {
		case "thin":
			return "1px"
		case "medium":
			return "3px"
		case "thick":
			return "5px"
		}
	}
	return ""
}

// parseLength parses the leading integer of a length, like parseInt does.
func parseLength(v string) int64 {
	v = strings.TrimSpace(v)
	i := 0
	for i < len(v) && v[i] >= '0' && v[i] <= '9' {
		i++
	}
	n, _ := strconv.ParseInt(v[:i], 10, 64)
	return n
}
