package observation

import (
	"strings"

	"golang.org/x/net/html"
)

const degradedTextCap = 5000

var skipTextTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "head": true,
}

// extractVisibleText walks a parsed document and concatenates text node
// content, skipping script/style/head subtrees. It backs the snapshot
// degrade path: when the injected producer script itself fails to run
// (a strict CSP, a page mid-navigation), a server-side parse of whatever
// HTML the debugger could still read out is better than nothing.
func extractVisibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if sb.Len() >= degradedTextCap {
			return
		}
		if n.Type == html.ElementNode && skipTextTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := sb.String()
	if len(out) > degradedTextCap {
		out = out[:degradedTextCap]
	}
	return out
}
