// Package extractor turns links, uploaded documents and raw text into
// normalized plain-text content items.
package extractor

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"triagefm/internal/domain"
)

// Reference points at the content to extract. Which fields are used depends
// on Kind: URL for links, Filename/MIMEType/Data for documents, Text and
// Forwarded for text.
type Reference struct {
	Kind      domain.Kind
	URL       string
	Filename  string
	MIMEType  string
	Data      []byte
	Text      string
	Forwarded bool
}

// Config holds the extractor limits.
type Config struct {
	FetchTimeout    time.Duration
	MaxBytes        int64
	RateLimit       float64 // outbound requests per second and host
	MinArticleChars int
	TempDir         string
	UserAgent       string
	YouTubeBaseURL  string
}

const (
	defaultFetchTimeout    = 15 * time.Second
	defaultMaxBytes        = 20 << 20
	defaultRateLimit       = 2
	defaultMinArticleChars = 200
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultYouTubeBaseURL  = "https://www.youtube.com"
)

// Extractor implements the per-kind extraction handlers.
type Extractor struct {
	cfg      Config
	client   *http.Client
	limiters *hostLimiters
	renderer Renderer
	log      logrus.FieldLogger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithRenderer enables the headless browser fallback for script-heavy pages.
func WithRenderer(r Renderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithHTTPClient replaces the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// New creates an Extractor, filling unset limits with defaults.
func New(cfg Config, logger logrus.FieldLogger, opts ...Option) *Extractor {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.MinArticleChars <= 0 {
		cfg.MinArticleChars = defaultMinArticleChars
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.YouTubeBaseURL == "" {
		cfg.YouTubeBaseURL = defaultYouTubeBaseURL
	}

	e := &Extractor{
		cfg:      cfg,
		client:   &http.Client{},
		limiters: newHostLimiters(cfg.RateLimit),
		log:      logger.WithField("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// extracted is what a kind handler produces before it becomes a ContentItem.
type extracted struct {
	source domain.SourceKind
	title  string
	text   string
}

// Extract produces a ContentItem from ref. Failures are *domain.Error values
// of the extraction kinds; nothing is retried.
func (e *Extractor) Extract(ctx context.Context, ref Reference) (domain.ContentItem, error) {
	log := e.log.WithField("kind", ref.Kind)
	start := time.Now()

	var (
		out extracted
		err error
	)
	switch ref.Kind {
	case domain.KindLink:
		log = log.WithField("url", ref.URL)
		out, err = e.extractLink(ctx, ref.URL)
	case domain.KindDocument:
		log = log.WithField("filename", ref.Filename)
		out, err = e.extractDocument(ref)
	case domain.KindText:
		out, err = extractText(ref.Text, ref.Forwarded)
	default:
		err = domain.NewError(domain.KindUnsupportedFormat, nil, "unknown content kind %q", ref.Kind)
	}
	if err != nil {
		log.WithError(err).Warn("Extraction failed")
		return domain.ContentItem{}, err
	}

	item := domain.ContentItem{
		ID:      uuid.NewString(),
		Kind:    ref.Kind,
		Source:  out.source,
		Title:   out.title,
		Text:    out.text,
		AddedAt: time.Now(),
	}
	log.WithFields(logrus.Fields{
		"source":   item.Source,
		"title":    item.Title,
		"length":   item.Length(),
		"duration": time.Since(start).String(),
	}).Info("Content extracted")
	return item, nil
}
