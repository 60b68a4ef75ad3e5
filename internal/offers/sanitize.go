package offers

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// View is what the gating surface renders for one offer.
type View struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Label reduces the anchor markup to its visible text. Script and style
// content is dropped; the result must still be escaped by the renderer.
func (o Offer) Label() string {
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(o.Anchor), parent)
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SafeURL returns the offer URL when it is an absolute http(s) link.
func (o Offer) SafeURL() string {
	u, err := url.Parse(strings.TrimSpace(o.URL))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func Views(offers []Offer) []View {
	views := make([]View, 0, len(offers))
	for i, o := range First(offers, MaxOffers) {
		views = append(views, View{Index: i + 1, URL: o.SafeURL(), Label: o.Label()})
	}
	return views
}
