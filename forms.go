package pagequery

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// elementProps holds the runtime state of an element that is not reflected
// in its attributes.
type elementProps struct {
	value    *string // dirty value of an input or textarea
	selected *bool   // selectedness of an option, once changed
	files    []File

	selStart, selEnd int
}

// File is a file assigned to a file input.
type File struct {
	Name         string
	MimeType     string
	LastModified time.Time
	Data         []byte
}

func (d *Document) prop(n *html.Node) *elementProps {
	p := d.props[n]
	if p == nil {
		p = new(elementProps)
		d.props[n] = p
	}
	return p
}

// inputType returns the lower cased type of an input, mapping unknown types
// to "text".
func inputType(n *html.Node) string {
	typ := strings.ToLower(strings.TrimSpace(getAttr(n, "type")))
	if typ == "" {
		return "text"
	}
	if _, ok := knownInputTypes[typ]; !ok {
		return "text"
	}
	return typ
}

var knownInputTypes = map[string]struct{}{
	"button": {}, "checkbox": {}, "color": {}, "date": {}, "datetime-local": {},
	"email": {}, "file": {}, "hidden": {}, "image": {}, "month": {},
	"number": {}, "password": {}, "radio": {}, "range": {}, "reset": {},
	"search": {}, "submit": {}, "tel": {}, "text": {}, "time": {},
	"url": {}, "week": {},
}

// value returns the current value of a form control.
func (d *Document) value(n *html.Node) string {
	switch {
	case isTag(n, atom.Input):
		if p := d.props[n]; p != nil {
			if inputType(n) == "file" {
				if len(p.files) == 0 {
					return ""
				}
				return `C:\fakepath\` + p.files[0].Name
			}
			if p.value != nil {
				return *p.value
			}
		}
		v, ok := attr(n, "value")
		switch typ := inputType(n); {
		case !ok && (typ == "checkbox" || typ == "radio"):
			return "on"
		case typ == "range" && !ok:
			return "50"
		default:
			return sanitizeValue(typ, v)
		}
	case isTag(n, atom.Textarea):
		if p := d.props[n]; p != nil && p.value != nil {
			return *p.value
		}
		return strings.TrimPrefix(textContent(n), "\n")
	case isTag(n, atom.Select):
		if opts := d.selectedOptions(n); len(opts) != 0 {
			return optionValue(opts[0])
		}
		return ""
	case isTag(n, atom.Option):
		return optionValue(n)
	}
	return ""
}

// setValue assigns the value of a form control, sanitizing it like a
// browser would, and moves the text selection to the end of the new value.
func (d *Document) setValue(n *html.Node, v string) {
	switch {
	case isTag(n, atom.Input):
		typ := inputType(n)
		if typ == "file" {
			if v == "" {
				d.prop(n).files = nil
			}
			return
		}
		v = sanitizeValue(typ, v)
		p := d.prop(n)
		p.value = &v
		p.selStart = utf8.RuneCountInString(v)
		p.selEnd = p.selStart
	case isTag(n, atom.Textarea):
		v = strings.ReplaceAll(v, "\r\n", "\n")
		p := d.prop(n)
		p.value = &v
		p.selStart = utf8.RuneCountInString(v)
		p.selEnd = p.selStart
	case isTag(n, atom.Select):
		var found bool
		for _, o := range d.options(n) {
			sel := !found && optionValue(o) == v
			found = found || sel
			d.prop(o).selected = &sel
		}
	}
}

// options returns the option elements of a select, including those inside
// optgroups.
func (d *Document) options(sel *html.Node) []*html.Node {
	var opts []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case isTag(c, atom.Option):
				opts = append(opts, c)
			case isTag(c, atom.Optgroup):
				visit(c)
			}
		}
	}
	visit(sel)
	return opts
}

func (d *Document) optionSelected(o *html.Node) bool {
	if p := d.props[o]; p != nil && p.selected != nil {
		return *p.selected
	}
	return hasAttr(o, "selected")
}

// selectedOptions returns the selected options of a select. A single select
// without an explicitly selected option displays its first enabled option.
func (d *Document) selectedOptions(sel *html.Node) []*html.Node {
	if !isTag(sel, atom.Select) {
		return nil
	}
	opts := d.options(sel)
	if hasAttr(sel, "multiple") {
		var selected []*html.Node
		for _, o := range opts {
			if d.optionSelected(o) {
				selected = append(selected, o)
			}
		}
		return selected
	}
	var last *html.Node
	for _, o := range opts {
		if d.optionSelected(o) {
			last = o
		}
	}
	if last != nil {
		return []*html.Node{last}
	}
	if size, _ := strconv.Atoi(getAttr(sel, "size")); size <= 1 {
		for _, o := range opts {
			if !isDisabledOption(o) {
				return []*html.Node{o}
			}
		}
	}
	return nil
}

func (d *Document) setOptionSelected(o *html.Node, selected bool) {
	d.prop(o).selected = &selected
}

func optionValue(o *html.Node) string {
	if v, ok := attr(o, "value"); ok {
		return v
	}
	return normalizeWhitespace(textContent(o))
}

func optionLabel(o *html.Node) string {
	if v := getAttr(o, "label"); v != "" {
		return v
	}
	return normalizeWhitespace(textContent(o))
}

var (
	validFloatRE    = regexp.MustCompile(`^-?(\d+(\.\d+)?|\.\d+)([eE][-+]?\d+)?$`)
	validDateRE     = regexp.MustCompile(`^(\d{4,})-(\d{2})-(\d{2})$`)
	validMonthRE    = regexp.MustCompile(`^(\d{4,})-(\d{2})$`)
	validWeekRE     = regexp.MustCompile(`^(\d{4,})-W(\d{2})$`)
	validTimeRE     = regexp.MustCompile(`^(\d{2}):(\d{2})(:(\d{2})(\.\d{1,3})?)?$`)
	validColorRE    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	jsNumberRE      = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	jsRadixNumberRE = regexp.MustCompile(`^0([xX][0-9a-fA-F]+|[oO][0-7]+|[bB][01]+)$`)
)

// sanitizeValue applies the value sanitization algorithm of the given input
// type.
func sanitizeValue(typ, v string) string {
	stripNewlines := func(s string) string {
		return strings.NewReplacer("\r", "", "\n", "").Replace(s)
	}
	switch typ {
	case "text", "search", "tel", "password":
		return stripNewlines(v)
	case "url", "email":
		return strings.TrimSpace(stripNewlines(v))
	case "number":
		if validFloatRE.MatchString(v) {
			return v
		}
		return ""
	case "range":
		if validFloatRE.MatchString(v) {
			return v
		}
		return "50"
	case "color":
		if validColorRE.MatchString(v) {
			return strings.ToLower(v)
		}
		return "#000000"
	case "date":
		if validDate(v) {
			return v
		}
		return ""
	case "month":
		if m := validMonthRE.FindStringSubmatch(v); m != nil && validYear(m[1]) && inRange(m[2], 1, 12) {
			return v
		}
		return ""
	case "week":
		if m := validWeekRE.FindStringSubmatch(v); m != nil && validYear(m[1]) && validWeek(m[1], m[2]) {
			return v
		}
		return ""
	case "time":
		if validTime(v) {
			return v
		}
		return ""
	case "datetime-local":
		i := strings.IndexAny(v, "T ")
		if i < 0 || !validDate(v[:i]) || !validTime(v[i+1:]) {
			return ""
		}
		return v[:i] + "T" + v[i+1:]
	}
	return v
}

func validYear(s string) bool {
	y, err := strconv.Atoi(s)
	return err == nil && y > 0
}

func inRange(s string, min, max int) bool {
	i, err := strconv.Atoi(s)
	return err == nil && min <= i && i <= max
}

func validDate(s string) bool {
	m := validDateRE.FindStringSubmatch(s)
	if m == nil || !validYear(m[1]) || !inRange(m[2], 1, 12) {
		return false
	}
	y, _ := strconv.Atoi(m[1])
	mon, _ := strconv.Atoi(m[2])
	days := time.Date(y, time.Month(mon)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return inRange(m[3], 1, days)
}

func validWeek(year, week string) bool {
	y, _ := strconv.Atoi(year)
	// a year has 53 weeks when December 28 falls in week 53
	_, last := time.Date(y, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return inRange(week, 1, last)
}

func validTime(s string) bool {
	m := validTimeRE.FindStringSubmatch(s)
	if m == nil || !inRange(m[1], 0, 23) || !inRange(m[2], 0, 59) {
		return false
	}
	return m[4] == "" || inRange(m[4], 0, 59)
}

// isNumeric reports whether s converts to a number other than NaN using
// the Number() conversion of page scripts.
func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	switch s {
	case "", "Infinity", "+Infinity", "-Infinity":
		return true
	}
	return jsNumberRE.MatchString(s) || jsRadixNumberRE.MatchString(s)
}
