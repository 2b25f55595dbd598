// Package seo writes page metadata into HTML documents.
package seo

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/varoOP/clubgate/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Apply sets the title and upserts the description, keywords, Open Graph and
// Twitter tags. Empty fields leave the document untouched.
func Apply(doc *goquery.Document, meta domain.SEOMeta) {
	head := ensureHead(doc)

	if meta.Title != "" {
		title := doc.Find("title").First()
		if title.Length() == 0 {
			head.AppendNodes(element(atom.Title))
			title = head.Find("title").First()
		}
		title.SetText(meta.Title)
	}

	upsert(head, "name", "description", meta.Description)
	upsert(head, "name", "keywords", meta.Keywords)
	upsert(head, "property", "og:title", meta.Title)
	upsert(head, "property", "og:description", meta.Description)
	upsert(head, "property", "og:image", meta.OGImage)
	upsert(head, "name", "twitter:image", meta.OGImage)
}

// ApplyHTML parses body, applies meta and renders the document again
func ApplyHTML(body []byte, meta domain.SEOMeta) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse document")
	}

	Apply(doc, meta)

	var buf bytes.Buffer
	for _, n := range doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return nil, errors.Wrap(err, "could not render document")
		}
	}

	return buf.Bytes(), nil
}

func upsert(head *goquery.Selection, attr, key, content string) {
	if content == "" {
		return
	}

	tag := head.Find("meta[" + attr + `="` + key + `"]`).First()
	if tag.Length() == 0 {
		head.AppendNodes(element(atom.Meta, html.Attribute{Key: attr, Val: key}))
		tag = head.Find("meta[" + attr + `="` + key + `"]`).First()
	}
	tag.SetAttr("content", content)
}

func ensureHead(doc *goquery.Document) *goquery.Selection {
	head := doc.Find("head").First()
	if head.Length() > 0 {
		return head
	}

	root := doc.Find("html").First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.PrependNodes(element(atom.Head))
	return doc.Find("head").First()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}
