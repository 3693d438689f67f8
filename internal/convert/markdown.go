package convert

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"browsermcp/internal/domain"
)

// HTMLToMarkdown renders an HTML document as markdown. Script, style, and
// other non-content elements are dropped; unknown elements contribute their
// text content.
func HTMLToMarkdown(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", domain.NewDomainError("convert.HTMLToMarkdown", domain.ErrConversion, err.Error())
	}

	var b strings.Builder
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		b.WriteString("# " + title + "\n\n")
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Each(func(_ int, sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			renderNode(&b, n, 0)
		}
	})

	return tidyBlankLines(b.String()), nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"iframe":   true,
	"svg":      true,
}

func renderNode(b *strings.Builder, n *html.Node, listDepth int) {
	if n.Type == html.TextNode {
		b.WriteString(collapseSpace(n.Data) + " ")
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}
	if skippedElements[n.Data] {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		b.WriteString("\n\n" + strings.Repeat("#", level) + " " + inlineText(n) + "\n\n")
		return
	case "p", "div", "section", "article", "header", "footer", "main", "table", "tr":
		b.WriteString("\n")
		renderChildren(b, n, listDepth)
		b.WriteString("\n")
		return
	case "br":
		b.WriteString("\n")
		return
	case "hr":
		b.WriteString("\n\n---\n\n")
		return
	case "a":
		href := attr(n, "href")
		text := inlineText(n)
		if text == "" {
			text = href
		}
		if href == "" || strings.HasPrefix(href, "javascript:") {
			b.WriteString(text + " ")
		} else {
			fmt.Fprintf(b, "[%s](%s) ", text, href)
		}
		return
	case "img":
		if src := attr(n, "src"); src != "" {
			fmt.Fprintf(b, "![%s](%s) ", attr(n, "alt"), src)
		}
		return
	case "strong", "b":
		if t := inlineText(n); t != "" {
			b.WriteString("**" + t + "** ")
		}
		return
	case "em", "i":
		if t := inlineText(n); t != "" {
			b.WriteString("*" + t + "* ")
		}
		return
	case "code":
		if t := inlineText(n); t != "" {
			b.WriteString("`" + t + "` ")
		}
		return
	case "pre":
		b.WriteString("\n\n```\n" + rawText(n) + "\n```\n\n")
		return
	case "blockquote":
		b.WriteString("\n> " + inlineText(n) + "\n\n")
		return
	case "ul", "ol":
		b.WriteString("\n")
		index := 1
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				marker := "- "
				if n.Data == "ol" {
					marker = fmt.Sprintf("%d. ", index)
					index++
				}
				b.WriteString(strings.Repeat("  ", listDepth) + marker)
				renderChildren(b, c, listDepth+1)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		return
	case "td", "th":
		renderChildren(b, n, listDepth)
		b.WriteString(" | ")
		return
	}

	renderChildren(b, n, listDepth)
}

func renderChildren(b *strings.Builder, n *html.Node, listDepth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c, listDepth)
	}
}

// inlineText flattens an element to collapsed plain text.
func inlineText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(b.String())
}

// rawText flattens an element preserving whitespace, for code blocks.
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Trim(b.String(), "\n")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidyBlankLines collapses runs of blank lines and trims line-trailing space.
func tidyBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}
