package extractor

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"triagefm/internal/domain"
)

const (
	boilerplateSelector = "script, style, noscript, nav, header, footer, aside, form, iframe"
	contentSelector     = "article, main, [role=main], .content, #content, .post, .article-body, .entry-content"
	blockSelector       = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre"
)

// extractHTML pulls the main text out of an HTML page. Readability runs
// first, then selector based extraction, then the browser renderer if one is
// configured and the static page was too thin.
func (e *Extractor) extractHTML(ctx context.Context, rawURL string, page *fetched) (extracted, error) {
	out, err := e.extractFromMarkup(string(page.body), page.finalURL)
	if err != nil {
		return extracted{}, err
	}

	if utf8.RuneCountInString(out.text) < e.cfg.MinArticleChars && e.renderer != nil {
		log := e.log.WithField("url", rawURL)
		log.WithField("length", utf8.RuneCountInString(out.text)).Debug("Static page too short, rendering in browser")

		rendered, rerr := e.renderer.Render(ctx, rawURL)
		if rerr != nil {
			log.WithError(rerr).Warn("Browser fallback failed, keeping static extraction")
		} else if alt, aerr := e.extractFromMarkup(rendered, page.finalURL); aerr == nil &&
			utf8.RuneCountInString(alt.text) > utf8.RuneCountInString(out.text) {
			out = alt
		}
	}

	if out.title == "" && page.finalURL != nil {
		out.title = page.finalURL.Hostname()
	}
	return finish(out, "the page")
}

func (e *Extractor) extractFromMarkup(markup string, pageURL *url.URL) (extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return extracted{}, domain.NewError(domain.KindParse, err, "parsing HTML")
	}
	title := pageTitle(doc)

	out := extracted{source: domain.SourceWebArticle, title: title}

	if pageURL != nil {
		article, rerr := readability.FromReader(strings.NewReader(markup), pageURL)
		if rerr == nil {
			if t := strings.TrimSpace(article.Title); t != "" {
				out.title = t
			}
			out.text = normalizeText(article.TextContent)
		} else {
			e.log.WithError(rerr).Debug("Readability failed, using selectors")
		}
	}

	if utf8.RuneCountInString(out.text) < e.cfg.MinArticleChars {
		if alt := selectorText(doc); utf8.RuneCountInString(alt) > utf8.RuneCountInString(out.text) {
			out.text = alt
		}
	}
	return out, nil
}

// pageTitle prefers og:title over the <title> element.
func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// selectorText strips boilerplate and returns the text of the most likely
// content container, one block element per line.
func selectorText(doc *goquery.Document) string {
	doc.Find(boilerplateSelector).Remove()

	container := doc.Find("body")
	best := 0
	doc.Find(contentSelector).Each(func(_ int, s *goquery.Selection) {
		if n := len(strings.TrimSpace(s.Text())); n > best {
			best = n
			container = s
		}
	})

	var buf bytes.Buffer
	container.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are covered by their parent.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		buf.WriteString(s.Text())
		buf.WriteByte('\n')
	})
	if strings.TrimSpace(buf.String()) == "" {
		return normalizeText(container.Text())
	}
	return normalizeText(buf.String())
}
