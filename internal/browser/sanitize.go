package browser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// truncationMarker is appended to snapshots cut at the byte limit.
const truncationMarker = "<!-- snapshot truncated -->"

// strippedElements never help the planner pick a selector.
var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Svg:      true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Link:     true,
	atom.Meta:     true,
}

// Sanitize removes scripts, styles, inline SVG and comments from a serialized
// DOM and cuts it to maxBytes, marker included, unless maxBytes is smaller
// than the marker itself. A maxBytes of zero or less disables the limit.
// Input that cannot be parsed is only truncated.
func Sanitize(dom string, maxBytes int) string {
	doc, err := html.Parse(strings.NewReader(dom))
	if err != nil {
		return truncate(dom, maxBytes)
	}
	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return truncate(dom, maxBytes)
	}
	return truncate(buf.String(), maxBytes)
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && strippedElements[c.DataAtom]:
			n.RemoveChild(c)
		default:
			prune(c)
		}
		c = next
	}
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
