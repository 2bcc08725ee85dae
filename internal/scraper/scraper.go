// Package scraper downloads and parses public Telegram channel preview pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tgwatch/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultBaseURL = "https://t.me/s/"
	maxBodySize    = 5 * 1024 * 1024

	// t.me serves a stripped-down page to clients without a browser signature.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

var backgroundURLRe = regexp.MustCompile(`background-image:\s*url\('([^']+)'\)`)

// Scraper downloads and parses channel preview pages. A Scraper holds no
// per-fetch state and is safe for concurrent use.
type Scraper struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// New creates a Scraper with the given HTTP client.
func New(client HTTPClient) *Scraper {
	return &Scraper{
		client:  client,
		baseURL: defaultBaseURL,
		timeout: 15 * time.Second,
	}
}

// SetBaseURL overrides the channel page base URL (useful for testing).
func (s *Scraper) SetBaseURL(u string) {
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	s.baseURL = u
}

// Fetch downloads the preview page of a channel and extracts its posts in
// page order. Failures are reported as *FetchError or *ParseError.
func (s *Scraper) Fetch(ctx context.Context, username string) ([]model.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+username, nil)
	if err != nil {
		return nil, &FetchError{Username: username, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Username: username, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Username: username, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ParseError{Username: username, Err: fmt.Errorf("parse html: %w", err)}
	}

	if doc.Find(".tgme_channel_history").Length() == 0 {
		return nil, &ParseError{Username: username, Err: fmt.Errorf("no channel history section")}
	}

	var posts []model.Post
	doc.Find(".tgme_widget_message").Each(func(_ int, block *goquery.Selection) {
		if p, ok := parseBlock(block); ok {
			posts = append(posts, p)
		}
	})
	return posts, nil
}

// parseBlock extracts one post from a message block. Blocks without a parseable
// message ID, without a timestamp, or with neither text nor media are skipped.
func parseBlock(block *goquery.Selection) (model.Post, bool) {
	id, ok := messageID(block)
	if !ok {
		return model.Post{}, false
	}

	postedAt, ok := timestamp(block)
	if !ok {
		return model.Post{}, false
	}

	// Quoted replies and forwarded-from headers belong to other senders;
	// drop them before extracting the post's own text.
	block.Find(".tgme_widget_message_reply").Remove()
	block.Find(".tgme_widget_message_forwarded_from").Remove()

	text := extractText(block.Find(".tgme_widget_message_text").First())
	mediaURL, mediaKind := extractMedia(block)

	if text == "" && mediaKind == model.MediaNone {
		return model.Post{}, false
	}

	return model.Post{
		MessageID: id,
		Text:      text,
		MediaURL:  mediaURL,
		MediaKind: mediaKind,
		PostedAt:  postedAt,
		Author:    strings.TrimSpace(block.Find(".tgme_widget_message_from_author").First().Text()),
	}, true
}

// messageID parses the numeric message ID out of the data-post attribute,
// which has the form "<channel>/<id>".
func messageID(block *goquery.Selection) (int64, bool) {
	dataPost, ok := block.Attr("data-post")
	if !ok {
		return 0, false
	}
	idx := strings.LastIndexByte(dataPost, '/')
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(dataPost[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func timestamp(block *goquery.Selection) (time.Time, bool) {
	dt, ok := block.Find(".tgme_widget_message_date time").First().Attr("datetime")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, dt)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// extractText returns the plain text of the text region with <br> elements
// converted to literal newlines.
func extractText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	return strings.TrimSpace(sel.Text())
}

// extractMedia detects a photo or video attachment. A video block that only
// carries a preview thumbnail still counts as a video.
func extractMedia(block *goquery.Selection) (string, model.MediaKind) {
	if style, ok := block.Find(".tgme_widget_message_photo_wrap").First().Attr("style"); ok {
		if u := backgroundURL(style); u != "" {
			return u, model.MediaPhoto
		}
	}

	if src, ok := block.Find("video.tgme_widget_message_video").First().Attr("src"); ok && src != "" {
		return src, model.MediaVideo
	}
	if style, ok := block.Find(".tgme_widget_message_video_thumb").First().Attr("style"); ok {
		if u := backgroundURL(style); u != "" {
			return u, model.MediaVideo
		}
	}

	return "", model.MediaNone
}

func backgroundURL(style string) string {
	m := backgroundURLRe.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return m[1]
}
