// Package export renders generated scripts as downloadable documents.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	fontName  = "Calibri"
	fontSize  = 12
	titleSize = 16
)

var speakerLine = regexp.MustCompile(`^((?:Co-host|Host)\s*:)\s*(.*)$`)

// ScriptDocx renders script as a Word document: a bold title, then one
// paragraph per non-empty line with the speaker label in bold.
// tempDir may be empty to use the OS default.
func ScriptDocx(tempDir, title, script string) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	addRun(doc.AddParagraph(""), title, true, titleSize)
	doc.AddParagraph("")

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p := doc.AddParagraph("")
		if m := speakerLine.FindStringSubmatch(line); m != nil {
			addRun(p, m[1]+" ", true, fontSize)
			if m[2] != "" {
				addRun(p, m[2], false, fontSize)
			}
			continue
		}
		addRun(p, line, false, fontSize)
	}

	dir, err := os.MkdirTemp(tempDir, "triagefm-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "script.docx")
	if err := doc.SaveTo(path); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

// Filename builds an attachment name like "triagefm-script-2024-05-01.docx".
func Filename(t time.Time) string {
	return "triagefm-script-" + t.Format("2006-01-02") + ".docx"
}
