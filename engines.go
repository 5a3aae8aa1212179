package pagequery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// queryEngine returns the elements below scope matching body, in tree
// order. Engines only see the light tree of scope.
type queryEngine func(scope *html.Node, body string) ([]*html.Node, error)

// queryEngines is indexed by EngineKind. Pseudo engines have no entry.
var queryEngines = [...]queryEngine{
	EngineCSS:   queryCSS,
	EngineText:  queryText,
	EngineXPath: queryXPath,
}

func queryCSS(scope *html.Node, body string) ([]*html.Node, error) {
	sel, err := cascadia.ParseGroup(body)
	if err != nil {
		return nil, fmt.Errorf("%w: css %q: %v", ErrInvalidSelector, body, err)
	}
	return cascadia.QueryAll(scope, sel), nil
}

func queryXPath(scope *html.Node, body string) ([]*html.Node, error) {
	if strings.HasPrefix(body, "/") {
		body = "." + body
	}
	nodes, err := htmlquery.QueryAll(scope, body)
	if err != nil {
		return nil, fmt.Errorf("%w: xpath %q: %v", ErrInvalidSelector, body, err)
	}
	res := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			res = append(res, n)
		}
	}
	return res, nil
}

// textSkipTags are never matched by, nor descended into by, the text engine.
var textSkipTags = []atom.Atom{atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template}

func queryText(scope *html.Node, body string) ([]*html.Node, error) {
	match, err := textMatcher(body)
	if err != nil {
		return nil, err
	}
	var res []*html.Node
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		var matched bool
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || isTag(c, textSkipTags...) {
				continue
			}
			if visit(c) {
				matched = true
			}
		}
		if matched || n == scope || n.Type != html.ElementNode {
			return matched
		}
		if match(elementText(n)) {
			res = append(res, n)
			return true
		}
		return false
	}
	visit(scope)
	return res, nil
}

// elementText is the text the text engine matches an element against.
func elementText(n *html.Node) string {
	if isTag(n, atom.Input) {
		switch inputType(n) {
		case "button", "submit", "reset":
			return getAttr(n, "value")
		}
	}
	return textContent(n)
}

// textMatcher builds the predicate for a text selector body:
//
//	"exact"   whitespace normalized, case sensitive full match
//	/re/i     regular expression
//	substr    whitespace normalized, case insensitive substring
func textMatcher(body string) (func(string) bool, error) {
	switch {
	case len(body) > 1 && (body[0] == '"' || body[0] == '\'') && body[len(body)-1] == body[0]:
		want, err := unquote(body)
		if err != nil {
			return nil, fmt.Errorf("%w: text %s: %v", ErrInvalidSelector, body, err)
		}
		want = normalizeWhitespace(want)
		return func(s string) bool {
			return normalizeWhitespace(s) == want
		}, nil
	case len(body) > 1 && body[0] == '/' && strings.LastIndexByte(body, '/') > 0:
		i := strings.LastIndexByte(body, '/')
		var flags string
		for _, f := range body[i+1:] {
			if strings.ContainsRune("ims", f) {
				flags += string(f)
			}
		}
		expr := body[1:i]
		if flags != "" {
			expr = "(?" + flags + ")" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: text %s: %v", ErrInvalidSelector, body, err)
		}
		return re.MatchString, nil
	}
	want := strings.ToLower(normalizeWhitespace(body))
	return func(s string) bool {
		return strings.Contains(strings.ToLower(normalizeWhitespace(s)), want)
	}, nil
}

func unquote(s string) (string, error) {
	if s[0] == '\'' {
		s = `"` + strings.ReplaceAll(strings.ReplaceAll(s[1:len(s)-1], `\'`, `'`), `"`, `\"`) + `"`
	}
	return strconv.Unquote(s)
}
