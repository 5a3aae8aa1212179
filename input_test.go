package pagequery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

// eventLog records the events delivered to the nodes it listens on.
type eventLog struct {
	events []string
}

func (l *eventLog) listen(t *testing.T, d *Document, n *html.Node, types ...string) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, typ := range types {
		d.AddEventListener(ctx, n, typ, func(ev *Event) {
			l.events = append(l.events, ev.Type+"@"+getAttr(ev.CurrentTarget, "id"))
		})
	}
}

func (l *eventLog) count(event string) int {
	var n int
	for _, ev := range l.events {
		if ev == event {
			n++
		}
	}
	return n
}

func TestFill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id    string
		value string
		exp   string
	}{
		{"name", "  hello world ", "hello world"},
		{"name-label", "via label", "via label"},
		{"wrap-label", "42", "42"},
		{"age", "1e3", "1e3"},
		{"birthday", "2021-03-04", "2021-03-04"},
	}
	for i, test := range tests {
		e := testEngine(t, "forms.html")
		n := byID(t, e.Document(), test.id)
		var log eventLog
		log.listen(t, e.Document(), e.Document().Root(), "input", "change")

		out, err := e.Fill(n, test.value)
		if err != nil {
			t.Fatalf("test %d (#%s) got error: %v", i, test.id, err)
		}
		if out != OutcomeDone {
			t.Errorf("test %d expected %q, got: %q", i, OutcomeDone, out)
		}
		target := e.Document().ActiveElement()
		if v := e.Document().Value(target); v != test.exp {
			t.Errorf("test %d expected value %q, got: %q", i, test.exp, v)
		}
		if len(log.events) != 2 || !strings.HasPrefix(log.events[0], "input@") || !strings.HasPrefix(log.events[1], "change@") {
			t.Errorf("test %d expected one input and one change event, got: %v", i, log.events)
		}
	}
}

func TestFillErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id    string
		value string
		exp   ErrorTag
	}{
		{"age", "seven", ErrNotFillableNumberInput},
		{"birthday", "2021-02-30", ErrNotValidDate},
		{"check", "on", ErrNotFillableElement},
		{"upload", "x", ErrNotFillableElement},
		{"para", "x", ErrNotFillableElement},
		{"editor", "x", ErrNotFillableElement},
		{"single", "B", ErrNotFillableElement},
	}
	for i, test := range tests {
		e := testEngine(t, "forms.html")
		_, err := e.Fill(byID(t, e.Document(), test.id), test.value)
		if err != test.exp {
			t.Errorf("test %d (#%s) expected %v, got: %v", i, test.id, test.exp, err)
		}
	}
}

func TestFillNumberLeavesValue(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	age := byID(t, e.Document(), "age")
	var log eventLog
	log.listen(t, e.Document(), age, "focus", "input", "change")

	if _, err := e.Fill(age, "not a number"); err != ErrNotFillableNumberInput {
		t.Errorf("expected %v, got: %v", ErrNotFillableNumberInput, err)
	}
	if v := e.Document().Value(age); v != "7" {
		t.Errorf("expected value to stay 7, got: %q", v)
	}
	if len(log.events) != 0 {
		t.Errorf("expected no events, got: %v", log.events)
	}
	if n := e.Document().ActiveElement(); n != nil {
		t.Errorf("expected no focus, got: %s", previewNode(n))
	}
}

func TestFillTextarea(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	notes := byID(t, e.Document(), "notes")

	out, err := e.Fill(notes, "ignored")
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if out != OutcomeNeedsInput {
		t.Errorf("expected %q, got: %q", OutcomeNeedsInput, out)
	}
	if n := e.Document().ActiveElement(); n != notes {
		t.Errorf("expected #notes to be focused, got: %s", previewNode(n))
	}
	if start, end := e.Document().SelectionRange(notes); start != 0 || end != len("old notes") {
		t.Errorf("expected the text to be selected, got: %d-%d", start, end)
	}

	var log eventLog
	log.listen(t, e.Document(), notes, "keydown", "keypress", "input", "keyup")
	if err := e.Type(notes, "new\n"); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if v := e.Document().Value(notes); v != "new\n" {
		t.Errorf("expected %q, got: %q", "new\n", v)
	}
	for _, ev := range []string{"input@notes", "keydown@notes", "keyup@notes"} {
		if n := log.count(ev); n != 4 {
			t.Errorf("expected 4 %s events, got: %d", ev, n)
		}
	}
}

func TestType(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	name := byID(t, e.Document(), "name")
	if _, err := e.Fill(name, "hello"); err != nil {
		t.Fatalf("got error: %v", err)
	}

	tests := []struct {
		text string
		opts []KeyOption
		exp  string
	}{
		{"!\b\b", nil, "hell"},
		{"\n", nil, "hell"}, // enter does not insert into inputs
		// control characters are not inserted
		{"a", []KeyOption{KeyModifiers(input.ModifierCtrl)}, "hell"},
	}
	for i, test := range tests {
		if err := e.Type(name, test.text, test.opts...); err != nil {
			t.Fatalf("test %d got error: %v", i, err)
		}
		if v := e.Document().Value(name); v != test.exp {
			t.Errorf("test %d expected %q, got: %q", i, test.exp, v)
		}
	}

	editor := byID(t, e.Document(), "editor")
	if err := e.Type(editor, "hi"); err != nil {
		t.Fatalf("got error: %v", err)
	}
	var text string
	e.Document().View(func(*Tree) {
		text = textContent(editor)
	})
	if text != "hi" {
		t.Errorf("expected editor text hi, got: %q", text)
	}
	if n := e.Document().ActiveElement(); n != editor {
		t.Errorf("expected #editor to be focused, got: %s", previewNode(n))
	}

	if err := e.Type(byID(t, e.Document(), "para"), "x"); err != ErrNotFillableElement {
		t.Errorf("expected %v, got: %v", ErrNotFillableElement, err)
	}
	if err := e.Type(nil, "x"); err != ErrNotConnected {
		t.Errorf("expected %v, got: %v", ErrNotConnected, err)
	}
}

func TestTypePreventDefault(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	name := byID(t, e.Document(), "name")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Document().AddEventListener(ctx, name, "keypress", func(ev *Event) {
		if ev.Init["key"] == "x" {
			ev.PreventDefault()
		}
	})

	if _, err := e.Fill(name, ""); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if err := e.Type(name, "axb"); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if v := e.Document().Value(name); v != "ab" {
		t.Errorf("expected ab, got: %q", v)
	}
}

func TestFocusNode(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	doc := e.Document()
	name, notes := byID(t, doc, "name"), byID(t, doc, "notes")
	var log eventLog
	log.listen(t, doc, name, "focus", "blur", "focusin", "focusout")
	log.listen(t, doc, notes, "focus", "blur", "focusin", "focusout")

	for i, n := range []*html.Node{name, name, notes} {
		if _, err := e.FocusNode(n, false); err != nil {
			t.Fatalf("test %d got error: %v", i, err)
		}
	}

	exp := []string{
		"focus@name", "focusin@name",
		"blur@name", "focusout@name",
		"focus@notes", "focusin@notes",
	}
	if diff := cmp.Diff(exp, log.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if n := doc.ActiveElement(); n != notes {
		t.Errorf("expected #notes to be focused, got: %s", previewNode(n))
	}

	if _, err := e.FocusNode(&html.Node{Type: html.ElementNode, Data: "input"}, false); err != ErrNotConnected {
		t.Errorf("expected %v, got: %v", ErrNotConnected, err)
	}
}

func TestFocusNodeResetSelection(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	name := byID(t, e.Document(), "name")

	if _, err := e.FocusNode(name, true); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if start, end := e.Document().SelectionRange(name); start != 0 || end != 0 {
		t.Errorf("expected a collapsed selection at 0, got: %d-%d", start, end)
	}
}

func TestSelectText(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	doc := e.Document()

	if _, err := e.SelectText(byID(t, doc, "name-label")); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if start, end := doc.SelectionRange(byID(t, doc, "name")); start != 0 || end != len("initial") {
		t.Errorf("expected the value to be selected, got: %d-%d", start, end)
	}

	para := byID(t, doc, "para")
	if _, err := e.SelectText(para); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if sel, exp := doc.Selection(), (Selection{Node: para, End: 1}); sel != exp {
		t.Errorf("expected selection %v, got: %v", exp, sel)
	}
	if n := doc.ActiveElement(); n != para {
		t.Errorf("expected #para to be focused, got: %s", previewNode(n))
	}
}

func TestSetInputFiles(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	doc := e.Document()
	upload := byID(t, doc, "upload")
	var log eventLog
	log.listen(t, doc, upload, "input", "change")

	out, err := e.SetInputFiles(upload, []FilePayload{{
		Name:           "a.txt",
		MimeType:       "text/plain",
		Buffer:         "aGk=",
		LastModifiedMs: 1600000000000,
	}})
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if out != OutcomeDone {
		t.Errorf("expected %q, got: %q", OutcomeDone, out)
	}
	if diff := cmp.Diff([]string{"input@upload", "change@upload"}, log.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	files := doc.Files(upload)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got: %d", len(files))
	}
	f := files[0]
	if f.Name != "a.txt" || f.MimeType != "text/plain" || string(f.Data) != "hi" {
		t.Errorf("unexpected file: %s %s %q", f.Name, f.MimeType, f.Data)
	}
	if !f.LastModified.Equal(time.UnixMilli(1600000000000)) {
		t.Errorf("unexpected modification time: %v", f.LastModified)
	}
	if v := doc.Value(upload); v != `C:\fakepath\a.txt` {
		t.Errorf("unexpected value: %q", v)
	}

	// an empty list clears the files
	if _, err := e.SetInputFiles(upload, nil); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if files := doc.Files(upload); len(files) != 0 {
		t.Errorf("expected no files, got: %d", len(files))
	}
	if v := doc.Value(upload); v != "" {
		t.Errorf("expected an empty value, got: %q", v)
	}
}

func TestSetInputFilesErrors(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	doc := e.Document()
	text := byID(t, doc, "para").FirstChild

	tests := []struct {
		n   *html.Node
		exp ErrorTag
	}{
		{nil, ErrNotElement},
		{text, ErrNotElement},
		{byID(t, doc, "notes"), ErrNotInput},
		{byID(t, doc, "name"), ErrNotFile},
	}
	for i, test := range tests {
		if _, err := e.SetInputFiles(test.n, nil); err != test.exp {
			t.Errorf("test %d expected %v, got: %v", i, test.exp, err)
		}
	}

	if _, err := e.SetInputFiles(byID(t, doc, "upload"), []FilePayload{{Name: "bad", Buffer: "!!"}}); err == nil {
		t.Error("expected an error for an invalid payload")
	}
	if files := doc.Files(byID(t, doc, "upload")); len(files) != 0 {
		t.Errorf("expected no files, got: %d", len(files))
	}
}

func TestSelectOptions(t *testing.T) {
	t.Parallel()

	str := func(s string) *string { return &s }
	idx := func(i int) *int { return &i }

	e := testEngine(t, "forms.html")
	doc := e.Document()
	single, multi := byID(t, doc, "single"), byID(t, doc, "multi")
	var log eventLog
	log.listen(t, doc, single, "input", "change")

	if diff := cmp.Diff([]string{"A"}, doc.SelectedValues(single)); diff != "" {
		t.Errorf("initial selection mismatch (-want +got):\n%s", diff)
	}

	var y *html.Node
	doc.View(func(*Tree) {
		y = doc.options(multi)[1]
	})

	tests := []struct {
		sel     *html.Node
		options []SelectOption
		exp     []string
	}{
		{single, []SelectOption{{Value: str("B")}}, []string{"B"}},
		// a single select takes the first match only
		{single, []SelectOption{{Label: str("Option C")}, {Index: idx(0)}}, []string{"A"}},
		{multi, []SelectOption{{Index: idx(0)}, {Label: str("Z")}}, []string{"x", "z"}},
		// criteria met by an already selected option are used up
		{multi, []SelectOption{{Value: str("x")}, {Index: idx(0)}}, []string{"x"}},
		{multi, []SelectOption{{Value: str("y")}, {Label: str("Y")}, {Value: str("z")}}, []string{"y", "z"}},
		// options can be given as nodes
		{multi, []SelectOption{{Node: y}}, []string{"y"}},
		// no match clears the selection
		{multi, []SelectOption{{Value: str("nope")}}, []string{}},
	}
	for i, test := range tests {
		values, err := e.SelectOptions(test.sel, test.options)
		if err != nil {
			t.Fatalf("test %d got error: %v", i, err)
		}
		if diff := cmp.Diff(test.exp, values); diff != "" {
			t.Errorf("test %d values mismatch (-want +got):\n%s", i, diff)
		}
		selected := doc.SelectedValues(test.sel)
		if len(test.exp) == 0 && len(selected) == 0 {
			continue
		}
		if diff := cmp.Diff(test.exp, selected); diff != "" {
			t.Errorf("test %d selection mismatch (-want +got):\n%s", i, diff)
		}
	}
	if v := doc.Value(single); v != "A" {
		t.Errorf("expected single value A, got: %q", v)
	}
	exp := []string{"input@single", "change@single", "input@single", "change@single"}
	if diff := cmp.Diff(exp, log.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.SelectOptions(byID(t, doc, "name"), nil); err != ErrNotSelect {
		t.Errorf("expected %v, got: %v", ErrNotSelect, err)
	}
}
