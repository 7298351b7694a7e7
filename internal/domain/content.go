package domain

import (
	"time"
	"unicode/utf8"
)

// Kind is the declared kind of a submission. It comes from the inbound event
// type and is never guessed from the content itself.
type Kind string

const (
	KindLink     Kind = "link"
	KindDocument Kind = "document"
	KindText     Kind = "text"
)

// SourceKind records where the normalized text actually came from.
type SourceKind string

const (
	SourceWebArticle   SourceKind = "web_article"
	SourceYouTubeVideo SourceKind = "youtube_video"
	SourcePDF          SourceKind = "pdf"
	SourceDOCX         SourceKind = "docx"
	SourcePlainText    SourceKind = "plain_text"
	SourceForwarded    SourceKind = "forwarded"
)

// Label is the human readable name used in queue listings and prompts.
func (s SourceKind) Label() string {
	switch s {
	case SourceWebArticle:
		return "Web Article"
	case SourceYouTubeVideo:
		return "YouTube Video"
	case SourcePDF:
		return "PDF Document"
	case SourceDOCX:
		return "Word Document"
	case SourcePlainText:
		return "Text Note"
	case SourceForwarded:
		return "Forwarded Message"
	default:
		return "Unknown Type"
	}
}

// ContentItem is one normalized entry of a user's queue.
// It is created by the extractor and never modified afterwards.
type ContentItem struct {
	// ID is unique within the owning user's queue.
	ID string `json:"id"`

	Kind   Kind       `json:"kind"`
	Source SourceKind `json:"source"`

	// Title is best effort and may be empty.
	Title string `json:"title"`

	// Text is plain text, never markup or binary.
	Text string `json:"normalized_text"`

	AddedAt time.Time `json:"added_at"`
}

// Length returns the number of characters of the normalized text.
func (c ContentItem) Length() int {
	return utf8.RuneCountInString(c.Text)
}

// DisplayTitle falls back to a generic title when none could be derived.
func (c ContentItem) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "Untitled content"
}
