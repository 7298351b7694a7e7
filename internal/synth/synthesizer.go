// Package synth turns a user's queued items into a two-voice narration script
// through a remote language model.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"triagefm/internal/domain"
)

// Config holds the knobs of the remote call.
type Config struct {
	Model          string
	MaxPromptChars int // per item, in characters
	Timeout        time.Duration
	Temperature    float64
	MaxTokens      int
}

const (
	defaultMaxPromptChars = 12000
	defaultTimeout        = 60 * time.Second
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1500

	truncationMarker = "[truncated]"
)

// Request is one prompt sent to a Provider.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider is the remote summarization capability. Implementations return
// *domain.Error values of the synthesis kinds where they can tell them apart;
// anything else is reported as ProviderUnavailable.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Synthesizer composes prompts and calls the Provider once per request.
type Synthesizer struct {
	cfg      Config
	provider Provider
	log      logrus.FieldLogger
}

// New creates a Synthesizer, filling unset knobs with defaults.
func New(cfg Config, provider Provider, logger logrus.FieldLogger) *Synthesizer {
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaultMaxPromptChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Synthesizer{
		cfg:      cfg,
		provider: provider,
		log: logger.WithFields(logrus.Fields{
			"component": "synthesizer",
			"provider":  provider.Name(),
			"model":     cfg.Model,
		}),
	}
}

// Synthesize returns the narration script for items, in queue order.
// An empty queue fails with EmptyQueue without contacting the provider.
func (s *Synthesizer) Synthesize(ctx context.Context, items []domain.ContentItem) (string, error) {
	if len(items) == 0 {
		return "", domain.NewError(domain.KindEmptyQueue, nil, "nothing queued")
	}

	req := BuildPrompt(items, s.cfg.MaxPromptChars)
	req.Temperature = s.cfg.Temperature
	req.MaxTokens = s.cfg.MaxTokens

	log := s.log.WithFields(logrus.Fields{
		"items":        len(items),
		"prompt_chars": utf8.RuneCountInString(req.System) + utf8.RuneCountInString(req.User),
	})
	log.Info("Requesting script from provider")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	script, err := s.provider.Generate(ctx, req)
	if err != nil {
		err = s.classify(ctx, err)
		log.WithError(err).WithField("duration", time.Since(start).String()).Error("Script generation failed")
		return "", err
	}

	script = strings.TrimSpace(script)
	if script == "" {
		err = domain.NewError(domain.KindMalformedResponse, nil, "provider returned no script text")
		log.WithError(err).Error("Script generation failed")
		return "", err
	}

	log.WithFields(logrus.Fields{
		"script_chars": utf8.RuneCountInString(script),
		"duration":     time.Since(start).String(),
	}).Info("Script generated")
	return script, nil
}

func (s *Synthesizer) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindProviderUnavailable, err, "no answer within %s", s.cfg.Timeout)
	}
	if domain.KindOf(err).Category() == domain.CategorySynthesis {
		return err
	}
	return domain.NewError(domain.KindProviderUnavailable, err, "%s request failed", s.provider.Name())
}

const systemPrompt = `You are the writing team of triage.fm, a personal podcast that helps a listener clear their read-it-later inbox.
Write a short spoken script for two voices, a Host and a Co-host.

Rules:
- Cover every item below in the order given, one short segment per item (three or four exchanges at most).
- For each item pull out the two or three most specific and surprising facts, numbers, examples or arguments. Avoid generic statements that could describe any content on the topic.
- End each segment with a clear recommendation: read it in full, skim it, or skip it, and for whom.
- Finish with a brief wrap-up that ranks what deserves the listener's attention first.
- Start every line with "Host:" or "Co-host:". Plain text only, no markdown, no HTML, no stage directions.
- Some item texts end with [truncated]. Do not invent what comes after it.`

// BuildPrompt composes the system and user messages for items, truncating
// each item's text to maxChars characters.
func BuildPrompt(items []domain.ContentItem, maxChars int) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d item(s) from my queue.\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "\nItem %d: %s (%s)\n", i+1, item.DisplayTitle(), item.Source.Label())
		if hint := sourceHint(item.Source); hint != "" {
			b.WriteString(hint)
			b.WriteByte('\n')
		}
		b.WriteString(truncate(item.Text, maxChars))
		b.WriteByte('\n')
	}
	return Request{System: systemPrompt, User: b.String()}
}

func sourceHint(s domain.SourceKind) string {
	switch s {
	case domain.SourceYouTubeVideo:
		return "This is a transcript from a YouTube video."
	case domain.SourceWebArticle:
		return "This is an article from the web."
	case domain.SourcePDF, domain.SourceDOCX:
		return "This is a document."
	default:
		return ""
	}
}

// truncate keeps the first max characters of s and marks the cut.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), func(r rune) bool { return r == ' ' || r == '\n' }) + " " + truncationMarker
}
