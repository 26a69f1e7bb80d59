// Package extract pulls field values out of fetched HTML with XPath
// selectors. Every lookup returns either a value or ErrNotFound, so callers
// decide per field whether absence is fatal or has a default.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrNotFound reports that a selector matched nothing, or that a matched
// element lacks the requested attribute.
var ErrNotFound = errors.New("element not found")

// Element is a matched node that further relative selectors can run against.
type Element struct {
	node *html.Node
}

// Document is a parsed page together with the URL it was fetched from.
type Document struct {
	Element
	URL string
}

// Parse reads an HTML document.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{Element: Element{node: root}, URL: pageURL}, nil
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte, pageURL string) (*Document, error) {
	return Parse(bytes.NewReader(body), pageURL)
}

// All returns every element matching expr, in document order. An empty result
// is not an error; an invalid expression is.
func (e Element) All(expr string) ([]Element, error) {
	if e.node == nil {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(e.node, expr)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", expr, err)
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Element{node: n})
	}
	return out, nil
}

// First returns the first element matching expr.
func (e Element) First(expr string) (Element, error) {
	if e.node == nil {
		return Element{}, fmt.Errorf("%q: %w", expr, ErrNotFound)
	}
	n, err := htmlquery.Query(e.node, expr)
	if err != nil {
		return Element{}, fmt.Errorf("query %q: %w", expr, err)
	}
	if n == nil {
		return Element{}, fmt.Errorf("%q: %w", expr, ErrNotFound)
	}
	return Element{node: n}, nil
}

// Exists reports whether expr matches anything. Invalid expressions count as
// no match.
func (e Element) Exists(expr string) bool {
	_, err := e.First(expr)
	return err == nil
}

// Text returns the whitespace-normalised text of the first match.
func (e Element) Text(expr string) (string, error) {
	el, err := e.First(expr)
	if err != nil {
		return "", err
	}
	return el.OwnText(), nil
}

// Attr returns attribute name of the first match.
func (e Element) Attr(expr, name string) (string, error) {
	el, err := e.First(expr)
	if err != nil {
		return "", err
	}
	val, err := el.AttrValue(name)
	if err != nil {
		return "", fmt.Errorf("%q: %w", expr, err)
	}
	return val, nil
}

// OwnText returns the element's inner text with runs of whitespace collapsed
// to single spaces and the ends trimmed.
func (e Element) OwnText() string {
	if e.node == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(e.node)), " ")
}

// AttrValue returns the element's own attribute. A present but empty
// attribute is returned as "".
func (e Element) AttrValue(name string) (string, error) {
	if e.node == nil {
		return "", fmt.Errorf("attribute %q: %w", name, ErrNotFound)
	}
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, nil
		}
	}
	return "", fmt.Errorf("attribute %q: %w", name, ErrNotFound)
}
