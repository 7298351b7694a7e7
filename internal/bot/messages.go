package bot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"triagefm/internal/session"
)

// maxMessageLength stays under Telegram's 4096 limit to leave room for the
// part header.
const maxMessageLength = 4000

const (
	welcomeMessage = "Hi %s! I'm triage.fm, your read-it-later narrator.\n\n" +
		"Send me links, documents or text and I'll add them to your queue.\n\n" +
		"When you're ready, use /generate to turn your queue into a two-voice script."

	helpMessage = "Here's how to use triage.fm:\n\n" +
		"1. Send me anything you want to read later: links, YouTube videos, PDF, DOCX, TXT or Markdown files, or plain text.\n" +
		"2. I'll confirm each item once it's in your queue.\n" +
		"3. Use /generate to get a narrated script covering everything in your queue.\n\n" +
		"Available commands:\n" +
		"/start - Start the bot\n" +
		"/help - Show this help message\n" +
		"/generate - Create a script from your queue\n" +
		"/queue - See what's in your queue\n" +
		"/clear - Clear your queue"

	unknownContentMessage = "Sorry, I can't process this type of content yet. Please send me text, links or documents."
	unknownCommandMessage = "I don't know that command. Use /help to see what I can do."
	commandHintMessage    = "It looks like you're trying to use a command. Please use /%s instead."
	documentTooLarge      = "That file is too large for me to process."
	downloadFailedMessage = "I couldn't download that file from Telegram. Please try sending it again."
	scriptPartHeader      = "Script (Part %d/%d):"
)

var bareCommands = map[string]bool{
	"start":    true,
	"help":     true,
	"generate": true,
	"queue":    true,
	"clear":    true,
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// classifyText maps a text message (or caption) to an event. When the text
// is a mistyped command, hint is set instead and nothing should be queued.
func classifyText(text string) (ev session.Event, hint string) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		return nil, unknownCommandMessage
	}
	lower := strings.ToLower(trimmed)
	if bareCommands[lower] {
		return nil, fmt.Sprintf(commandHintMessage, lower)
	}
	if u := firstURL(trimmed); u != "" {
		return session.LinkSubmitted{URL: u}, ""
	}
	return session.TextSubmitted{Text: text}, ""
}

// firstURL returns the first http(s) URL in s without trailing punctuation.
func firstURL(s string) string {
	u := urlPattern.FindString(s)
	return strings.TrimRight(u, ".,;:!?)]}'")
}

// splitMessage breaks text into parts of at most limit runes, preferring
// line boundaries, then word boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		cur     strings.Builder
		curLen  int
		started bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
		curLen = 0
		started = false
	}

	for _, line := range strings.Split(text, "\n") {
		for _, piece := range splitLine(line, limit) {
			n := utf8.RuneCountInString(piece)
			if started && curLen+1+n > limit {
				flush()
			}
			if started {
				cur.WriteByte('\n')
				curLen++
			}
			cur.WriteString(piece)
			curLen += n
			started = true
		}
	}
	flush()
	return parts
}

// splitLine cuts a single line into pieces of at most limit runes on word
// boundaries. Words longer than limit are cut hard.
func splitLine(line string, limit int) []string {
	if utf8.RuneCountInString(line) <= limit {
		return []string{line}
	}

	var (
		pieces []string
		cur    []rune
	)
	for _, word := range strings.Fields(line) {
		w := []rune(word)
		for len(w) > limit {
			if len(cur) > 0 {
				pieces = append(pieces, string(cur))
				cur = nil
			}
			pieces = append(pieces, string(w[:limit]))
			w = w[limit:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > limit {
			pieces = append(pieces, string(cur))
			cur = nil
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	if len(cur) > 0 {
		pieces = append(pieces, string(cur))
	}
	return pieces
}

// scriptMessages splits script and prefixes every continuation part.
func scriptMessages(script string) []string {
	parts := splitMessage(script, maxMessageLength)
	if len(parts) == 1 {
		return parts
	}
	for i := 1; i < len(parts); i++ {
		parts[i] = fmt.Sprintf(scriptPartHeader, i+1, len(parts)) + "\n\n" + parts[i]
	}
	return parts
}
