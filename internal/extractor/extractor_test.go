package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triagefm/internal/domain"
)

const articleBody = `The ocean floor holds deposits of nickel, cobalt and manganese that mining companies want to collect.
Scientists warn that the plumes of sediment stirred up by collector vehicles could travel hundreds of kilometres.
Regulators at the International Seabed Authority have spent a decade drafting a mining code without reaching agreement.`

func newTestExtractor(t *testing.T, cfg Config, opts ...Option) *Extractor {
	t.Helper()
	logger, _ := test.NewNullLogger()
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	return New(cfg, logger, opts...)
}

func articlePage(title string) string {
	var paragraphs strings.Builder
	for _, line := range strings.Split(articleBody, "\n") {
		fmt.Fprintf(&paragraphs, "<p>%s</p>\n", line)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%[1]s</title><meta property="og:title" content="%[1]s"></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article><h1>%[1]s</h1>
%[2]s</article>
<footer>Copyright Example News</footer>
</body></html>`, title, paragraphs.String())
}

func TestExtract_Text(t *testing.T) {
	e := newTestExtractor(t, Config{})

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "  Hello world  \n"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", item.Text)
	assert.Equal(t, "Hello world", item.Title)
	assert.Equal(t, domain.KindText, item.Kind)
	assert.Equal(t, domain.SourcePlainText, item.Source)
	assert.NotEmpty(t, item.ID)
	assert.False(t, item.AddedAt.IsZero())

	item, err = e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "one two three four five six seven"})
	require.NoError(t, err)
	assert.Equal(t, "one two three four five...", item.Title)
	assert.Equal(t, "one two three four five six seven", item.Text)
}

func TestExtract_TextKeepsInnerFormatting(t *testing.T) {
	e := newTestExtractor(t, Config{})

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "\n first line\n\n  second   line \n"})
	require.NoError(t, err)
	assert.Equal(t, "first line\n\n  second   line", item.Text)
}

func TestExtract_ForwardedText(t *testing.T) {
	e := newTestExtractor(t, Config{})

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "Meeting moved to Friday", Forwarded: true})
	require.NoError(t, err)
	assert.Equal(t, domain.KindText, item.Kind)
	assert.Equal(t, domain.SourceForwarded, item.Source)
	assert.Equal(t, "Forwarded Message", item.Source.Label())
	assert.Equal(t, "Meeting moved to Friday", item.Text)
}

func TestExtract_TextDropsControlCharacters(t *testing.T) {
	e := newTestExtractor(t, Config{})

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "abc\x00\adef"})
	require.NoError(t, err)
	assert.Equal(t, "abcdef", item.Text)

	item, err = e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "\u200bline one\r\nline\ttwo\x1b\x7f"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline\ttwo", item.Text)

	// Joiners inside emoji sequences are content, not padding.
	item, err = e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: "family \U0001F468\u200d\U0001F469"})
	require.NoError(t, err)
	assert.Equal(t, "family \U0001F468\u200d\U0001F469", item.Text)
}

func TestExtract_EmptyText(t *testing.T) {
	e := newTestExtractor(t, Config{})

	for _, in := range []string{"", "   ", "\n\t\n", "\u200b", "\ufeff \u200b\n\u2060", "\x00\a"} {
		_, err := e.Extract(context.Background(), Reference{Kind: domain.KindText, Text: in})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrEmptyContent), "input %q", in)
	}
}

func TestExtract_UnknownKind(t *testing.T) {
	e := newTestExtractor(t, Config{})

	_, err := e.Extract(context.Background(), Reference{Kind: "video"})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))
}

func TestExtract_HTMLArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage("Deep Sea Mining Explained"))
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: srv.URL + "/story"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceWebArticle, item.Source)
	assert.Equal(t, "Deep Sea Mining Explained", item.Title)
	assert.Contains(t, item.Text, "plumes of sediment")
	assert.Contains(t, item.Text, "International Seabed Authority")
	assert.NotContains(t, item.Text, "<p>")
	assert.NotContains(t, item.Text, "Copyright Example News")
}

type stubRenderer struct {
	html  string
	err   error
	calls int32
}

func (s *stubRenderer) Render(_ context.Context, _ string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.html, s.err
}

func TestExtract_HTMLRendererFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>App</title></head><body><div id="root">Loading...</div></body></html>`)
	}))
	defer srv.Close()

	renderer := &stubRenderer{html: articlePage("Rendered Story")}
	e := newTestExtractor(t, Config{}, WithRenderer(renderer))

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: srv.URL})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&renderer.calls))
	assert.Contains(t, item.Text, "collector vehicles")
	assert.Equal(t, "Rendered Story", item.Title)
}

func TestExtract_HTMLRendererFailureKeepsStaticText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Short</title></head><body><p>Just a short note about tides.</p></body></html>`)
	}))
	defer srv.Close()

	renderer := &stubRenderer{err: errors.New("no browser")}
	e := newTestExtractor(t, Config{}, WithRenderer(renderer))

	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, item.Text, "short note about tides")
}

func TestExtract_PlainTextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "RFC notes\r\n\r\nSection one   explains framing.\n")
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{})
	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: srv.URL + "/notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "RFC notes\nSection one explains framing.", item.Text)
}

func TestExtract_LinkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/archive":
			w.Header().Set("Content-Type", "application/zip")
			w.Write([]byte("PK\x03\x04"))
		case "/huge":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(strings.Repeat("a", 4096)))
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><script>var x = 1;</script></body></html>")
		}
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{MaxBytes: 1024})

	testCases := []struct {
		name string
		url  string
		want error
	}{
		{"not found", srv.URL + "/missing", domain.ErrFetch},
		{"server error", srv.URL + "/broken", domain.ErrFetch},
		{"unsupported type", srv.URL + "/archive", domain.ErrUnsupportedFormat},
		{"too large", srv.URL + "/huge", domain.ErrFetch},
		{"no text", srv.URL + "/empty", domain.ErrEmptyContent},
		{"not a url", "definitely not a url", domain.ErrFetch},
		{"bad scheme", "ftp://example.com/file", domain.ErrFetch},
		{"unreachable host", "http://127.0.0.1:1/article", domain.ErrFetch},
		{"twitter", "https://twitter.com/someone/status/1", domain.ErrUnsupportedFormat},
		{"x.com", "https://x.com/someone/status/1", domain.ErrUnsupportedFormat},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: tc.url})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestExtract_FetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{FetchTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFetch))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestExtract_RateLimitBoundedByFetchTimeout(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "a short note about tides")
	})
	slow := httptest.NewServer(handler)
	defer slow.Close()
	other := httptest.NewServer(handler)
	defer other.Close()

	// One request every four seconds, far beyond the timeout.
	e := newTestExtractor(t, Config{FetchTimeout: 300 * time.Millisecond, RateLimit: 0.25})
	ctx := context.Background()

	_, err := e.Extract(ctx, Reference{Kind: domain.KindLink, URL: slow.URL + "/first"})
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Extract(ctx, Reference{Kind: domain.KindLink, URL: slow.URL + "/second"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFetch), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, hits.Load(), "throttled request never reaches the origin")

	// Other hosts keep their own budget.
	item, err := e.Extract(ctx, Reference{Kind: domain.KindLink, URL: other.URL + "/first"})
	require.NoError(t, err)
	assert.Equal(t, "a short note about tides", item.Text)
}

func TestHostLimiters(t *testing.T) {
	h := newHostLimiters(1)

	a := h.get("Example.com")
	assert.Same(t, a, h.get("example.com"))
	assert.NotSame(t, a, h.get("example.org"))

	for i := 0; i < maxTrackedHosts; i++ {
		h.get(fmt.Sprintf("host-%d.example", i))
	}
	assert.NotSame(t, a, h.get("example.com"), "least recently used host is evicted")
}

func TestExtract_LinkQuotingYouTubeIsFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "shared page body")
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{YouTubeBaseURL: "http://127.0.0.1:1"})
	item, err := e.Extract(context.Background(), Reference{
		Kind: domain.KindLink,
		URL:  srv.URL + "/share?u=youtube.com/watch?v=dQw4w9WgXcQ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWebArticle, item.Source)
	assert.Equal(t, "shared page body", item.Text)
}

func TestYouTubeVideoID(t *testing.T) {
	testCases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":                 "dQw4w9WgXcQ",
		"https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ":       "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?t=42":                           "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":                  "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":                   "dQw4w9WgXcQ",
		"https://www.youtube.com/channel/UC123":                       "",
		"https://example.com/watch?v=dQw4w9WgXcQ":                     "",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=3":               "dQw4w9WgXcQ",
		"https://www.youtube.com/live/dQw4w9WgXcQ?si=abc":             "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short":                       "",
		"https://example.com/share?u=youtube.com/watch?v=dQw4w9WgXcQ": "",
		"https://notyoutube.com/watch?v=dQw4w9WgXcQ":                  "",
		"https://example.com/youtu.be/dQw4w9WgXcQ":                    "",
	}
	for in, want := range testCases {
		assert.Equal(t, want, youtubeVideoID(in), in)
	}
}

func TestPickTrack(t *testing.T) {
	auto := captionTrack{BaseURL: "auto", LanguageCode: "en", Kind: "asr"}
	manual := captionTrack{BaseURL: "manual", LanguageCode: "en-GB"}
	german := captionTrack{BaseURL: "de", LanguageCode: "de"}

	got, ok := pickTrack([]captionTrack{german, auto, manual})
	require.True(t, ok)
	assert.Equal(t, "manual", got.BaseURL)

	got, ok = pickTrack([]captionTrack{german, auto})
	require.True(t, ok)
	assert.Equal(t, "auto", got.BaseURL)

	got, ok = pickTrack([]captionTrack{german})
	require.True(t, ok)
	assert.Equal(t, "de", got.BaseURL)

	_, ok = pickTrack(nil)
	assert.False(t, ok)
}

func TestParseTimedText(t *testing.T) {
	legacy := `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0" dur="1.5">Hello there &amp;amp; welcome</text>
<text start="1.5" dur="2">it&amp;#39;s a   test</text>
</transcript>`
	text, err := parseTimedText([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, "Hello there & welcome it's a test", text)

	srv3 := `<timedtext format="3"><body><p t="0" d="1000"><s>first</s><s> words</s></p><p t="1000" d="500">second</p></body></timedtext>`
	text, err = parseTimedText([]byte(srv3))
	require.NoError(t, err)
	assert.Equal(t, "first words second", text)

	_, err = parseTimedText([]byte("<transcript><text>unterminated"))
	assert.True(t, errors.Is(err, domain.ErrParse))
}

func TestExtract_YouTubeTranscript(t *testing.T) {
	var captionHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><head><title>Ocean Talk - YouTube</title>
<meta property="og:title" content="Ocean Talk">
<meta property="og:description" content="short description">
</head><body><script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"/api/timedtext?v=dQw4w9WgXcQ&lang=de","languageCode":"de"},{"baseUrl":"/api/timedtext?v=dQw4w9WgXcQ&lang=en","languageCode":"en","kind":"asr"}]}},"videoDetails":{"shortDescription":"Long description of the talk."}};</script></body></html>`)
		case "/api/timedtext":
			atomic.AddInt32(&captionHits, 1)
			assert.Equal(t, "en", r.URL.Query().Get("lang"))
			w.Header().Set("Content-Type", "text/xml")
			fmt.Fprint(w, `<transcript><text start="0" dur="1">Welcome to the talk.</text><text start="1" dur="1">Today we cover tides.</text></transcript>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{YouTubeBaseURL: srv.URL})
	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceYouTubeVideo, item.Source)
	assert.Equal(t, "Ocean Talk", item.Title)
	assert.Equal(t, "Welcome to the talk. Today we cover tides.", item.Text)
	assert.EqualValues(t, 1, atomic.LoadInt32(&captionHits))
}

func TestExtract_YouTubeDescriptionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Quiet Video - YouTube</title></head><body><script>var ytInitialPlayerResponse = {"videoDetails":{"shortDescription":"A walk through the forest.\nNo narration."}};</script></body></html>`)
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{YouTubeBaseURL: srv.URL})
	item, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: "https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Equal(t, "Quiet Video", item.Title)
	assert.Equal(t, "A walk through the forest.\nNo narration.", item.Text)
}

func TestExtract_YouTubeNothingUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Silent - YouTube</title></head><body></body></html>`)
	}))
	defer srv.Close()

	e := newTestExtractor(t, Config{YouTubeBaseURL: srv.URL})
	_, err := e.Extract(context.Background(), Reference{Kind: domain.KindLink, URL: "https://youtu.be/dQw4w9WgXcQ"})
	assert.True(t, errors.Is(err, domain.ErrEmptyContent))
}

func TestNormalizeText(t *testing.T) {
	in := "  Title\t\tline \r\n\r\n\x00body  text\x07 here\n\n\n last "
	assert.Equal(t, "Title line\nbody text here\nlast", normalizeText(in))
	assert.Equal(t, "", normalizeText(" \n\t \r\n"))
}

func TestTitleFromText(t *testing.T) {
	assert.Equal(t, "Hello world", titleFromText("Hello world"))
	assert.Equal(t, "a b c d e", titleFromText("a b c d e"))
	assert.Equal(t, "a b c d e...", titleFromText("a  b\nc d e f"))
	assert.Equal(t, "", titleFromText("   "))
}
