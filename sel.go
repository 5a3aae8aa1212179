package pagequery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EngineKind is the kind of query engine a selector part is resolved with.
type EngineKind int

// Engine kinds.
const (
	EngineCSS EngineKind = iota
	EngineText
	EngineXPath

	// EngineVisible filters the elements matched so far by visibility.
	EngineVisible
	// EngineNth picks one element among the elements matched so far.
	EngineNth
)

var engineNames = [...]string{
	EngineCSS:     "css",
	EngineText:    "text",
	EngineXPath:   "xpath",
	EngineVisible: "visible",
	EngineNth:     "nth",
}

// String satisfies fmt.Stringer.
func (k EngineKind) String() string {
	if int(k) < len(engineNames) {
		return engineNames[k]
	}
	return "EngineKind(" + strconv.Itoa(int(k)) + ")"
}

// pseudo reports whether k filters matches rather than looking them up.
func (k EngineKind) pseudo() bool {
	return k == EngineVisible || k == EngineNth
}

func engineKindFromName(name string) (EngineKind, bool) {
	for k, n := range engineNames {
		if n == name {
			return EngineKind(k), true
		}
	}
	return 0, false
}

// SelectorPart is one step of a selector chain.
type SelectorPart struct {
	Engine EngineKind
	Name   string
	Body   string

	// nth holds the parsed body of an nth part, visible the parsed body of a
	// visible part.
	nth     int
	visible bool
}

// Selector is a parsed chain of selector parts.
type Selector struct {
	Parts []SelectorPart

	// Capture is the index of the part whose match is returned instead of
	// the last one, or -1.
	Capture int

	source string
}

// String returns the selector source.
func (s *Selector) String() string {
	if s.source != "" {
		return s.source
	}
	parts := make([]string, len(s.Parts))
	for i, p := range s.Parts {
		name := p.Engine.String()
		if i == s.Capture {
			name = "*" + name
		}
		parts[i] = name + "=" + p.Body
	}
	return strings.Join(parts, " >> ")
}

// hasNth reports whether the selector contains an nth part.
func (s *Selector) hasNth() bool {
	for _, p := range s.Parts {
		if p.Engine == EngineNth {
			return true
		}
	}
	return false
}

// captures reports whether the part at index is the capture part. A
// selector without a capture has none.
func (s *Selector) captures(index int) bool {
	return s.Capture != -1 && s.Capture == index
}

var engineNameRE = regexp.MustCompile(`^[a-zA-Z_0-9\-+:*]+$`)

// ParseSelector parses a selector chain of the form
//
//	css=.list >> text="Item" >> nth=0
//
// Parts are separated by ">>" outside of quotes. A part without an engine
// name is a text selector when quoted, an xpath selector when it starts with
// "//" or "..", and a css selector otherwise. Prefixing an engine name with
// "*" marks the part as the capture.
func ParseSelector(s string) (*Selector, error) {
	sel := &Selector{Capture: -1, source: s}
	for _, raw := range splitSelector(s) {
		part, capture, err := parseSelectorPart(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, s, err)
		}
		if capture {
			if sel.Capture != -1 {
				return nil, fmt.Errorf("%w %q: only one of the selectors can capture using * modifier", ErrInvalidSelector, s)
			}
			sel.Capture = len(sel.Parts)
		}
		sel.Parts = append(sel.Parts, part)
	}
	if len(sel.Parts) == 0 {
		return nil, fmt.Errorf("%w %q: empty selector", ErrInvalidSelector, s)
	}
	return sel, nil
}

// MustParseSelector is like ParseSelector but panics on error.
func MustParseSelector(s string) *Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func parseSelectorPart(raw string) (SelectorPart, bool, error) {
	var name, body string
	switch eq := strings.IndexByte(raw, '='); {
	case eq != -1 && engineNameRE.MatchString(strings.TrimSpace(raw[:eq])):
		name = strings.TrimSpace(raw[:eq])
		body = strings.TrimSpace(raw[eq+1:])
	case len(raw) > 1 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0]:
		name, body = "text", raw
	case strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, ".."):
		name, body = "xpath", raw
	default:
		name, body = "css", raw
	}

	var capture bool
	if strings.HasPrefix(name, "*") {
		capture = true
		name = name[1:]
	}
	kind, ok := engineKindFromName(strings.ToLower(name))
	if !ok {
		return SelectorPart{}, false, fmt.Errorf("unknown engine %q", name)
	}
	part := SelectorPart{Engine: kind, Name: name, Body: body}
	switch kind {
	case EngineNth:
		n, err := strconv.Atoi(body)
		if err != nil || n < -1 {
			return SelectorPart{}, false, fmt.Errorf("nth expects a non-negative index or -1, got %q", body)
		}
		part.nth = n
	case EngineVisible:
		switch body {
		case "", "true":
			part.visible = true
		case "false":
		default:
			return SelectorPart{}, false, fmt.Errorf("visible expects true or false, got %q", body)
		}
	}
	if body == "" && !kind.pseudo() {
		return SelectorPart{}, false, fmt.Errorf("empty %s selector", name)
	}
	return part, capture, nil
}

// splitSelector splits s on ">>" outside of quoted strings.
func splitSelector(s string) []string {
	var parts []string
	var quote byte
	start := 0
	add := func(end int) {
		if p := strings.TrimSpace(s[start:end]); p != "" {
			parts = append(parts, p)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>' && i+1 < len(s) && s[i+1] == '>':
			add(i)
			i++
			start = i + 1
		}
	}
	add(len(s))
	return parts
}
