package extraction

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// textTokens returns the trimmed, non-empty text nodes under sel in document order.
// Script and style contents are ignored.
func textTokens(sel *goquery.Selection) []string {
	var tokens []string
	for _, n := range sel.Nodes {
		collectText(n, &tokens)
	}
	return tokens
}

func collectText(n *html.Node, out *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := collapseSpace(n.Data); t != "" {
			*out = append(*out, t)
		}
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

// spacedText joins the text nodes under sel with single spaces, so adjacent
// inline elements ("<span>Bitcoin</span><span>BTC</span>") stay separate words.
func spacedText(sel *goquery.Selection) string {
	return strings.Join(textTokens(sel), " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hasLetter reports whether s contains an alphabetic character.
func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
