package news

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var hrefAllowPatterns = []string{"article", "announcement", "support", "help", "square", "post"}

var hrefDenyPatterns = []string{"/categories/", "/sections/", "/tag/", "/search", "/login", "/register"}

const (
	maxBodyBytes = 2048
	maxCardBody  = 500
)

type anchor struct {
	href      string
	text      string
	body      string
	published time.Time
	dated     bool
}

func parseDocument(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// extractAnchors walks the document and returns announcement-looking links
// resolved against base, after the allow/deny href filters. Each anchor is
// enriched from its surrounding card: a teaser snippet and, when the card
// carries one, a publish date.
func extractAnchors(root *html.Node, base *url.URL) []anchor {
	var out []anchor
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attr(n, "href")
		if href == "" {
			return
		}
		lower := strings.ToLower(href)
		for _, deny := range hrefDenyPatterns {
			if strings.Contains(lower, deny) {
				return
			}
		}
		allowed := false
		for _, allow := range hrefAllowPatterns {
			if strings.Contains(lower, allow) {
				allowed = true
				break
			}
		}
		if !allowed {
			return
		}
		if u, err := base.Parse(href); err == nil {
			href = u.String()
		}
		text := strings.TrimSpace(nodeText(n))
		if text == "" {
			return
		}
		a := anchor{href: href, text: text}
		card := cardRoot(n)
		if t, ok := cardDate(card); ok {
			a.published, a.dated = t, true
		}
		a.body = cardSnippet(card, text)
		out = append(out, a)
	})
	return out
}

// cardRoot climbs from the anchor to its enclosing list card. Semantic
// containers win; otherwise three levels approximate the card.
func cardRoot(n *html.Node) *html.Node {
	card := n
	hops := 0
	for p := n.Parent; p != nil && hops < 3; p = p.Parent {
		card = p
		hops++
		if p.Type == html.ElementNode {
			switch p.Data {
			case "li", "article", "tr":
				return p
			}
		}
	}
	return card
}

var cardDateMarkers = []string{"date", "time", "published", "created"}

// cardDate finds a date on the card: a <time datetime> element first, then
// any element whose class names a date field.
func cardDate(card *html.Node) (time.Time, bool) {
	var found time.Time
	ok := false
	walk(card, func(n *html.Node) {
		if ok || n.Type != html.ElementNode {
			return
		}
		if n.Data == "time" {
			if t, parsed := parseDate(attr(n, "datetime")); parsed {
				found, ok = t, true
			} else if t, parsed := parseDate(nodeText(n)); parsed {
				found, ok = t, true
			}
			return
		}
		class := strings.ToLower(attr(n, "class"))
		if class == "" {
			return
		}
		for _, marker := range cardDateMarkers {
			if strings.Contains(class, marker) {
				if t, parsed := parseDate(nodeText(n)); parsed {
					found, ok = t, true
				}
				return
			}
		}
	})
	return found, ok
}

var cardBodyMarkers = []string{"content", "body", "description", "text", "summary"}

// cardSnippet pulls the card's teaser: an element class-marked as content,
// else the first paragraph that is not the title itself.
func cardSnippet(card *html.Node, title string) string {
	var snippet string
	walk(card, func(n *html.Node) {
		if snippet != "" || n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "p", "div", "span":
			class := strings.ToLower(attr(n, "class"))
			for _, marker := range cardBodyMarkers {
				if strings.Contains(class, marker) {
					if text := flatText(n); text != "" && text != title {
						snippet = text
					}
					return
				}
			}
			if n.Data == "p" {
				if text := flatText(n); text != "" && text != title {
					snippet = text
				}
			}
		}
	})
	if len(snippet) > maxCardBody {
		snippet = snippet[:maxCardBody]
	}
	return snippet
}

func flatText(n *html.Node) string {
	return strings.Join(strings.Fields(nodeText(n)), " ")
}

// dateLayouts covers the formats venues actually emit in datetime
// attributes and meta tags.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// extractDate runs the cascade: <time datetime>, published-time meta tags,
// then JSON-LD articles.
func extractDate(root *html.Node) (time.Time, bool) {
	var found time.Time
	ok := false
	walk(root, func(n *html.Node) {
		if ok || n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "time":
			if t, parsed := parseDate(attr(n, "datetime")); parsed {
				found, ok = t, true
			} else if t, parsed := parseDate(nodeText(n)); parsed {
				found, ok = t, true
			}
		case "meta":
			key := attr(n, "property")
			if key == "" {
				key = attr(n, "name")
			}
			key = strings.ToLower(key)
			switch key {
			case "article:published_time", "og:published_time", "datepublished":
				if t, parsed := parseDate(attr(n, "content")); parsed {
					found, ok = t, true
				}
			}
		case "script":
			if !strings.EqualFold(attr(n, "type"), "application/ld+json") {
				return
			}
			if t, parsed := dateFromJSONLD(nodeText(n)); parsed {
				found, ok = t, true
			}
		}
	})
	return found, ok
}

// dateFromJSONLD extracts datePublished from an article-typed JSON-LD
// payload (single object or list).
func dateFromJSONLD(raw string) (time.Time, bool) {
	var any interface{}
	if err := json.Unmarshal([]byte(raw), &any); err != nil {
		return time.Time{}, false
	}
	var objs []map[string]interface{}
	switch v := any.(type) {
	case map[string]interface{}:
		objs = append(objs, v)
	case []interface{}:
		for _, e := range v {
			if m, isMap := e.(map[string]interface{}); isMap {
				objs = append(objs, m)
			}
		}
	}
	articleTypes := map[string]bool{
		"Article": true, "NewsArticle": true, "BlogPosting": true, "Posting": true,
	}
	for _, obj := range objs {
		typ, _ := obj["@type"].(string)
		if !articleTypes[typ] {
			continue
		}
		if raw, has := obj["datePublished"].(string); has {
			if t, ok := parseDate(raw); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// extractBody returns the article text: <main>, <article>, a div whose
// class mentions content/article/body/post, or the full page text as a
// last resort. Truncated to 2 kB.
func extractBody(root *html.Node) string {
	var node *html.Node
	walk(root, func(n *html.Node) {
		if node != nil || n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "main", "article":
			node = n
		case "div":
			class := strings.ToLower(attr(n, "class"))
			for _, marker := range []string{"content", "article", "body", "post"} {
				if strings.Contains(class, marker) {
					node = n
					return
				}
			}
		}
	})
	if node == nil {
		node = root
	}
	text := flatText(node)
	if len(text) > maxBodyBytes {
		text = text[:maxBodyBytes]
	}
	return text
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") && !strings.EqualFold(attr(n, "type"), "application/ld+json") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
