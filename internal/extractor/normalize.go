package extractor

import (
	"strings"
	"unicode"

	"triagefm/internal/domain"
)

// normalizeText turns extracted text into clean plain text: control
// characters removed, whitespace inside a line collapsed, blank lines dropped.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Map(func(r rune) rune {
			if r == '\t' {
				return ' '
			}
			if unicode.IsControl(r) || r == unicode.ReplacementChar {
				return -1
			}
			return r
		}, line)
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// titleFromText uses the first five words of the text as a title.
func titleFromText(s string) string {
	words := strings.Fields(s)
	if len(words) <= 5 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:5], " ") + "..."
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractText handles inline text submissions. Control characters are
// dropped and the edges trimmed; the layout in between is kept verbatim.
func extractText(s string, forwarded bool) (extracted, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	text := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	// Zero-width and other format characters count as blank at the edges.
	text = strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.Is(unicode.Cf, r)
	})
	if text == "" {
		return extracted{}, domain.NewError(domain.KindEmptyContent, nil, "text message is empty")
	}
	out := extracted{
		source: domain.SourcePlainText,
		title:  titleFromText(text),
		text:   text,
	}
	if forwarded {
		out.source = domain.SourceForwarded
	}
	return out, nil
}

// finish normalizes handler output and rejects empty results.
func finish(out extracted, what string) (extracted, error) {
	out.text = normalizeText(out.text)
	out.title = cleanTitle(out.title)
	if out.text == "" {
		return extracted{}, domain.NewError(domain.KindEmptyContent, nil, "no text could be extracted from %s", what)
	}
	if out.title == "" {
		out.title = titleFromText(out.text)
	}
	return out, nil
}
