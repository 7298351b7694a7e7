package extractor

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"triagefm/internal/domain"
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// youtubeVideoID returns the video id of a YouTube URL, or "". Only the
// YouTube hosts count; a youtube.com URL nested in another site's query
// string is an ordinary link.
func youtubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	var id string
	switch strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	}
	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func isTwitterHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "mobile.")
	return host == "twitter.com" || host == "x.com"
}

func (e *Extractor) extractLink(ctx context.Context, rawURL string) (extracted, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return extracted{}, domain.NewError(domain.KindFetch, err, "%q is not a valid http(s) URL", rawURL)
	}

	if isTwitterHost(u.Hostname()) {
		return extracted{}, domain.NewError(domain.KindUnsupportedFormat, nil, "Twitter/X links are not supported")
	}

	if id := youtubeVideoID(rawURL); id != "" {
		out, err := e.extractYouTube(ctx, id)
		if err != nil {
			return extracted{}, err
		}
		return finish(out, "the video")
	}

	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		return extracted{}, err
	}

	switch {
	case page.contentType == "text/html" || page.contentType == "application/xhtml+xml":
		return e.extractHTML(ctx, rawURL, page)
	case page.contentType == "application/pdf":
		out, err := e.extractPDFBytes(page.body)
		if err != nil {
			return extracted{}, err
		}
		if out.title == "" {
			out.title = lastPathSegment(page.finalURL)
		}
		return finish(out, "the PDF")
	case strings.HasPrefix(page.contentType, "text/plain"):
		return finish(extracted{
			source: domain.SourceWebArticle,
			text:   decodeText(page.body),
		}, "the page")
	default:
		return extracted{}, domain.NewError(domain.KindUnsupportedFormat, nil, "content type %q is not supported", page.contentType)
	}
}

func lastPathSegment(u *url.URL) string {
	if u == nil {
		return ""
	}
	seg := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if seg == "" {
		return u.Hostname()
	}
	return seg
}
