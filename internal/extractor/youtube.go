package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"triagefm/internal/domain"
)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" for auto-generated tracks
}

// extractYouTube reads the transcript of a video from its caption track,
// falling back to the video description when there are no captions.
func (e *Extractor) extractYouTube(ctx context.Context, videoID string) (extracted, error) {
	watchURL := e.cfg.YouTubeBaseURL + "/watch?v=" + url.QueryEscape(videoID)
	log := e.log.WithField("video_id", videoID)

	page, err := e.fetch(ctx, watchURL)
	if err != nil {
		return extracted{}, err
	}

	out := extracted{source: domain.SourceYouTubeVideo}
	description := ""
	if doc, derr := goquery.NewDocumentFromReader(bytes.NewReader(page.body)); derr == nil {
		out.title = strings.TrimSuffix(pageTitle(doc), " - YouTube")
		description = metaDescription(doc)
	}
	if full := jsonStringAfter(page.body, `"shortDescription":`); full != "" {
		description = full
	}

	tracks := captionTracks(page.body)
	if track, ok := pickTrack(tracks); ok {
		trackURL, terr := e.resolveTrackURL(track.BaseURL)
		if terr == nil {
			caption, cerr := e.fetch(ctx, trackURL)
			if cerr == nil {
				transcript, perr := parseTimedText(caption.body)
				if perr == nil && strings.TrimSpace(transcript) != "" {
					out.text = transcript
					log.WithField("language", track.LanguageCode).Debug("Using caption track")
					return out, nil
				}
				log.WithError(perr).Warn("Caption track could not be parsed")
			} else {
				log.WithError(cerr).Warn("Caption track could not be fetched")
			}
		}
	}

	if strings.TrimSpace(description) == "" {
		return extracted{}, domain.NewError(domain.KindEmptyContent, nil, "video %s has no captions or description", videoID)
	}
	log.Info("No usable captions, using video description")
	out.text = description
	return out, nil
}

func (e *Extractor) resolveTrackURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(e.cfg.YouTubeBaseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// captionTracks finds the caption track list embedded in the watch page's
// player response.
func captionTracks(body []byte) []captionTrack {
	idx := bytes.Index(body, []byte(`"captionTracks":`))
	if idx < 0 {
		return nil
	}
	var tracks []captionTrack
	dec := json.NewDecoder(bytes.NewReader(body[idx+len(`"captionTracks":`):]))
	if err := dec.Decode(&tracks); err != nil {
		return nil
	}
	return tracks
}

// jsonStringAfter decodes the JSON string literal that follows key in body.
func jsonStringAfter(body []byte, key string) string {
	idx := bytes.Index(body, []byte(key))
	if idx < 0 {
		return ""
	}
	var s string
	if err := json.NewDecoder(bytes.NewReader(body[idx+len(key):])).Decode(&s); err != nil {
		return ""
	}
	return s
}

// pickTrack prefers a manual English track, then an automatic English one,
// then whatever comes first.
func pickTrack(tracks []captionTrack) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	isEnglish := func(t captionTrack) bool {
		return t.LanguageCode == "en" || strings.HasPrefix(t.LanguageCode, "en-")
	}
	for _, t := range tracks {
		if isEnglish(t) && t.Kind != "asr" {
			return t, true
		}
	}
	for _, t := range tracks {
		if isEnglish(t) {
			return t, true
		}
	}
	return tracks[0], true
}

// parseTimedText joins the cues of a timed-text document. Both the legacy
// <text> format and the srv3 <p>/<s> format are understood.
func parseTimedText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		cues  []string
		cue   strings.Builder
		depth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", domain.NewError(domain.KindParse, err, "caption track")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "text" || t.Name.Local == "p" {
				if depth == 0 {
					cue.Reset()
				}
				depth++
			}
		case xml.CharData:
			if depth > 0 {
				cue.Write(t)
			}
		case xml.EndElement:
			if (t.Name.Local == "text" || t.Name.Local == "p") && depth > 0 {
				depth--
				if depth == 0 {
					if s := strings.Join(strings.Fields(html.UnescapeString(cue.String())), " "); s != "" {
						cues = append(cues, s)
					}
				}
			}
		}
	}
	return strings.Join(cues, " "), nil
}
