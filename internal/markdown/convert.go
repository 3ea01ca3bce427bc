// Package markdown converts Moodle notification HTML into Markdown suitable
// for chat channels. The conversion is deliberately lossy: it keeps
// headings, links, emphasis and lists, and drops images, scripts and
// horizontal rules.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var (
	linkedImage = regexp.MustCompile(`\[!\[[^\]]*\]\([^)]*\)\]\([^)]*\)`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
)

// Convert renders the given HTML as Markdown and cleans the result.
func Convert(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	render(doc.Find("body"), &b)

	return Clean(b.String()), nil
}

// Clean normalizes converted text: NFC normalization, linked-image and
// rule removal, collapsed whitespace, no trailing space.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = linkedImage.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "* * *", "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func render(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "#text":
			b.WriteString(spaceRuns.ReplaceAllString(strings.ReplaceAll(s.Text(), "\n", " "), " "))

		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(name[1] - '0')
			b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
			render(s, b)
			b.WriteString("\n\n")

		case "p", "div", "table", "tr":
			render(s, b)
			b.WriteString("\n\n")

		case "br":
			b.WriteString("\n")

		case "strong", "b":
			b.WriteString("**")
			render(s, b)
			b.WriteString("**")

		case "em", "i":
			b.WriteString("*")
			render(s, b)
			b.WriteString("*")

		case "a":
			// Linked images are navigation chrome in Moodle mail; drop them.
			if s.ChildrenFiltered("img").Length() > 0 {
				return
			}
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			if href, ok := s.Attr("href"); ok && href != "" {
				fmt.Fprintf(b, "[%s](%s)", text, href)
			} else {
				b.WriteString(text)
			}

		case "ul", "ol":
			b.WriteString("\n")
			s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				b.WriteString("- ")
				render(li, b)
				b.WriteString("\n")
			})
			b.WriteString("\n")

		case "img", "hr", "script", "style", "head":
			// dropped

		default:
			render(s, b)
		}
	})
}
