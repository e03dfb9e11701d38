package web

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

const maxMarkdownDepth = 256

// ToMarkdown renders an HTML document as link-annotated text. Every followable link is
// written as [text](absolute-url) so the targets can be matched textually later on.
func ToMarkdown(htmlContent string, baseURL string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	base, _ := url.Parse(baseURL)
	var sb strings.Builder
	writeNode(doc, &sb, base, 0)
	return cleanMarkdown(sb.String()), nil
}

func writeNode(n *html.Node, sb *strings.Builder, base *url.URL, depth int) {
	if depth > maxMarkdownDepth {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "template", "head":
			return
		case "a":
			writeLink(n, sb, base, depth)
			return
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString("[Image: " + alt + "] ")
			}
			return
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n### ")
		case "p", "div", "section", "article", "table", "ul", "ol":
			sb.WriteString("\n\n")
		case "br", "tr":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(c, sb, base, depth+1)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6", "p":
			sb.WriteString("\n\n")
		}
	}
}

func writeLink(n *html.Node, sb *strings.Builder, base *url.URL, depth int) {
	var inner strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(c, &inner, base, depth+1)
	}
	text := strings.Join(strings.Fields(inner.String()), " ")
	target := resolveLink(base, attr(n, "href"))
	if target == "" {
		if text != "" {
			sb.WriteString(text + " ")
		}
		return
	}
	sb.WriteString("[" + text + "](" + target + ") ")
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	if ref.Scheme == "" || ref.Host == "" {
		return ""
	}
	return ref.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
