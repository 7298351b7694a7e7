package session

import (
	"errors"
	"fmt"
	"strings"

	"triagefm/internal/domain"
)

const (
	msgBusy      = "I'm still working on your previous request. Please wait a moment."
	msgCleared   = "Your queue has been cleared."
	msgQueueNone = "Your queue is empty. Send me links, documents or text first."
	msgInternal  = "Something went wrong on my side. Please try again."
)

// userMessage maps a failure to the text shown to the user. Only the
// unsupported-format detail is surfaced, the rest stays in the logs.
func userMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindFetch:
		return "I couldn't fetch that content. Please check that the link is reachable and try again."
	case domain.KindUnsupportedFormat:
		var e *domain.Error
		if errors.As(err, &e) && e.Detail != "" {
			return fmt.Sprintf("Sorry, I can't process this: %s. I handle web pages, YouTube videos, PDF, DOCX, TXT and Markdown files, and plain text.", e.Detail)
		}
		return "Sorry, I can't process this type of content yet."
	case domain.KindEmptyContent:
		return "I couldn't find any readable text in that content."
	case domain.KindParse:
		return "That file looks damaged, I couldn't read it."
	case domain.KindEmptyQueue:
		return msgQueueNone
	case domain.KindProviderUnavailable:
		return "The script service is unavailable right now. Your queue is safe, try /generate again in a bit."
	case domain.KindProviderRateLimited:
		return "The script service is rate limited at the moment. Your queue is safe, please try again in a few minutes."
	case domain.KindMalformedResponse:
		return "The script service returned an unusable answer. Your queue is safe, try /generate again."
	default:
		return msgInternal
	}
}

func addedMessage(item domain.ContentItem, size int) string {
	return fmt.Sprintf("Added %q (%s). It is item %d in your queue.", item.DisplayTitle(), item.Source.Label(), size)
}

// listing renders the queue as "N. <title> [<label>]" lines.
func listing(items []domain.ContentItem) string {
	if len(items) == 0 {
		return "Your queue is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your queue (%d item(s)):\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, item.DisplayTitle(), item.Source.Label())
	}
	return strings.TrimRight(b.String(), "\n")
}
