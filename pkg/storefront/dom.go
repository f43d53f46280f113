package storefront

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func ParseDocument(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

func Render(doc *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

func depth(n *html.Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// imageURL returns the best source URL of an img, looking at lazy-load
// attributes and the first srcset candidate when src is empty.
func imageURL(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-original"} {
		if v, ok := attr(n, key); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	for _, key := range []string{"srcset", "data-srcset"} {
		if v, ok := attr(n, key); ok {
			first := strings.TrimSpace(strings.Split(v, ",")[0])
			if f := strings.Fields(first); len(f) > 0 {
				return f[0]
			}
		}
	}
	return ""
}

// DefaultProductImagePattern recognises catalog-hosted product photos.
var DefaultProductImagePattern = regexp.MustCompile(`(?i)(/products?/|/files/|cdn\.shopify\.com|/media/|/catalog/)`)

type imageMatcher struct {
	pattern *regexp.Regexp
}

func (m imageMatcher) isProductImage(n *html.Node) bool {
	if n.DataAtom != atom.Img {
		return false
	}
	if _, ok := attr(n, MarkerAttr); ok {
		return true
	}
	u := imageURL(n)
	return u != "" && m.pattern.MatchString(u)
}

func (m imageMatcher) productImages(root *html.Node) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if m.isProductImage(n) {
			out = append(out, n)
		}
	})
	return out
}
