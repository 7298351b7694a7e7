package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Renderer returns the HTML of a page after its scripts have run. It is only
// consulted when the static HTML yields too little text.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// RodRenderer implements Renderer with a headless Chromium driven by rod.
type RodRenderer struct {
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewRodRenderer creates a renderer that launches a browser per call.
func NewRodRenderer(timeout time.Duration, logger logrus.FieldLogger) *RodRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodRenderer{
		log:     logger.WithField("component", "renderer"),
		timeout: timeout,
	}
}

// Render loads url in a fresh browser and returns the rendered document.
func (s *RodRenderer) Render(ctx context.Context, url string) (html string, err error) {
	log := s.log.WithField("url", url)
	log.Info("Rendering page in headless browser")

	// --- Browser Setup ---
	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", errors.New("rod browser dependency not found")
	}
	controlURL, err := launcher.New().Bin(path).Headless(true).Launch()
	if err != nil {
		log.WithError(err).Error("Failed to launch rod browser")
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	err = browser.Connect()
	if err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	// Ensure the browser is closed when the function exits
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
		} else {
			log.Debug("Rod browser instance closed")
		}
	}()

	// --- Page Navigation ---
	var page *rod.Page
	page, err = browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	err = page.WaitLoad()
	if err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Rendering timed out")
			return "", fmt.Errorf("rendering timed out for %s: %w", url, pageCtx.Err())
		}
		log.WithError(err).Error("Failed to wait for page load")
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err = page.HTML()
	if err != nil {
		log.WithError(err).Error("Failed to read rendered HTML")
		return "", fmt.Errorf("failed to read rendered html: %w", err)
	}

	log.WithField("html_bytes", len(html)).Info("Page rendered successfully")
	return html, nil
}
