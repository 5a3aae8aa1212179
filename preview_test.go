package pagequery

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestPreviewNode(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html")
	doc := e.Document()
	tests := []struct {
		n   *html.Node
		exp string
	}{
		{nil, "<nil>"},
		{doc.Root(), "<#document />"},
		{byID(t, doc, "name"), `<input id="name" value="initial"/>`},
		{byID(t, doc, "notes"), `<textarea id="notes">old notes</textarea>`},
		{byID(t, doc, "name-label").FirstChild, "#text=Name"},
		{byID(t, doc, "fs"), `<fieldset id="fs" disabled="">…</fieldset>`},
		{byID(t, doc, "button"), `<button id="button">…</button>`},
		{byID(t, doc, "editor"), `<div id="editor" contenteditable="true"></div>`},
	}
	for i, test := range tests {
		if s := e.PreviewNode(test.n); s != test.exp {
			t.Errorf("test %d expected %q, got: %q", i, test.exp, s)
		}
	}
}

func TestPreviewNodeText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 60)
	doc, err := ParseString(`<div id="shown" style="color: red">shown</div>` +
		`<p id="long">` + long + `</p>` +
		"<p id=\"nl\">a\n\tb</p>" +
		`<p id="` + long + `">x</p>`)
	if err != nil {
		t.Fatal(err)
	}
	e := New(doc, WithLogf(t.Logf))
	tests := []struct {
		id  string
		exp string
	}{
		{"shown", `<div id="shown">shown</div>`},
		{"long", `<p id="long">` + strings.Repeat("a", 49) + "…</p>"},
		{"nl", `<p id="nl">a↵⇆b</p>`},
		{long, `<p id="` + strings.Repeat("a", 44) + "…>x</p>"},
	}
	for i, test := range tests {
		if s := e.PreviewNode(byID(t, doc, test.id)); s != test.exp {
			t.Errorf("test %d expected %q, got: %q", i, test.exp, s)
		}
	}
}

func TestPreviewNodeAttrOrder(t *testing.T) {
	t.Parallel()

	doc, err := ParseString(`<a href="https://example.com" id="x" class="link">go</a>`)
	if err != nil {
		t.Fatal(err)
	}
	var a *html.Node
	doc.View(func(tr *Tree) {
		a = tr.GetElementByID("x")
	})
	exp := `<a id="x" class="link" href="https://example.com">go</a>`
	if s := previewNode(a); s != exp {
		t.Errorf("expected %q, got: %q", exp, s)
	}
}
