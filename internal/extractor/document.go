package extractor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"

	"triagefm/internal/domain"
)

var mimeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/msword": ".doc",
	"text/plain":         ".txt",
	"text/markdown":      ".md",
}

// documentExtension returns the lowercase extension of the file, using the
// MIME type only when the name carries none.
func documentExtension(filename, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	return mimeExtensions[mt]
}

func (e *Extractor) extractDocument(ref Reference) (extracted, error) {
	ext := documentExtension(ref.Filename, ref.MIMEType)
	if int64(len(ref.Data)) > e.cfg.MaxBytes {
		return extracted{}, domain.NewError(domain.KindFetch, nil, "%s is larger than %d bytes", ref.Filename, e.cfg.MaxBytes)
	}

	title := strings.TrimSuffix(filepath.Base(ref.Filename), filepath.Ext(ref.Filename))
	if title == "." || title == string(filepath.Separator) {
		title = ""
	}

	var (
		out extracted
		err error
	)
	switch ext {
	case ".pdf":
		out, err = e.extractPDFBytes(ref.Data)
	case ".docx":
		out, err = extractDOCX(ref.Data)
	case ".txt", ".md":
		out = extracted{source: domain.SourcePlainText, text: decodeText(ref.Data)}
	default:
		shown := ext
		if shown == "" {
			shown = "unknown"
		}
		return extracted{}, domain.NewError(domain.KindUnsupportedFormat, nil, "file type %s is not supported", shown)
	}
	if err != nil {
		return extracted{}, err
	}
	if out.title == "" {
		out.title = title
	}
	return finish(out, ref.Filename)
}

// extractPDFBytes stages the PDF on disk for the parser and returns the
// joined page text.
func (e *Extractor) extractPDFBytes(data []byte) (out extracted, err error) {
	var pages []string
	err = withTempFile(e.cfg.TempDir, "triagefm-*.pdf", data, func(path string) error {
		var perr error
		pages, perr = readPDFPages(path)
		return perr
	})
	if err != nil {
		if domain.KindOf(err) != "" {
			return extracted{}, err
		}
		return extracted{}, domain.NewError(domain.KindParse, err, "reading PDF")
	}
	return extracted{source: domain.SourcePDF, text: joinPages(pages)}, nil
}

func readPDFPages(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindParse, fmt.Errorf("%v", r), "malformed PDF")
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, domain.NewError(domain.KindParse, err, "malformed PDF")
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, terr := page.GetPlainText(nil)
		if terr != nil {
			return nil, domain.NewError(domain.KindParse, terr, "page %d", i)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// joinPages concatenates page texts without creating artifacts at page
// breaks: a word hyphenated across the break is rejoined, a page ending a
// sentence starts a new paragraph, anything else is joined with a space.
func joinPages(pages []string) string {
	var b strings.Builder
	for _, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(page)
			continue
		}
		prev := b.String()
		last, _ := utf8.DecodeLastRuneInString(prev)
		first, _ := utf8.DecodeRuneInString(page)
		switch {
		case last == '-' && endsWithLetterBeforeHyphen(prev) && unicode.IsLower(first):
			b.Reset()
			b.WriteString(strings.TrimSuffix(prev, "-"))
		case strings.ContainsRune(".!?:\"”'", last):
			b.WriteString("\n\n")
		default:
			b.WriteByte(' ')
		}
		b.WriteString(page)
	}
	return b.String()
}

func endsWithLetterBeforeHyphen(s string) bool {
	s = strings.TrimSuffix(s, "-")
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsLetter(r)
}

// extractDOCX returns paragraph text in document order. Tables are skipped.
func extractDOCX(data []byte) (out extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindParse, fmt.Errorf("%v", r), "malformed DOCX")
		}
	}()

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return extracted{}, domain.NewError(domain.KindParse, err, "malformed DOCX")
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := paragraphText(p); strings.TrimSpace(text) != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return extracted{source: domain.SourceDOCX, text: strings.Join(paragraphs, "\n")}, nil
}

func paragraphText(p *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range p.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRun(&sb, c)
		case *docx.Hyperlink:
			writeRun(&sb, &c.Run)
		}
	}
	return sb.String()
}

func writeRun(sb *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			sb.WriteString(c.Text)
		case *docx.Tab:
			sb.WriteByte(' ')
		}
	}
}

// decodeText accepts UTF-8 input, dropping invalid sequences and a BOM.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(data), "")
}
