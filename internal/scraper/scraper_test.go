package scraper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tgwatch/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/channel.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func fetchFixture(t *testing.T) []model.Post {
	t.Helper()
	s := New(&mockTransport{body: loadFixture(t), statusCode: 200})
	posts, err := s.Fetch(context.Background(), "devopsdigest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return posts
}

func TestFetchExtractsPosts(t *testing.T) {
	posts := fetchFixture(t)

	var gotIDs []int64
	for _, p := range posts {
		gotIDs = append(gotIDs, p.MessageID)
	}
	// 108 has no data-post, 109 no timestamp, 110 neither text nor media.
	wantIDs := []int64{101, 102, 103, 104, 105, 106, 107, 111}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("message IDs mismatch (-want +got):\n%s", diff)
	}

	first := posts[0]
	if diff := cmp.Diff("Kubernetes 1.32 released today", first.Text); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	wantTime := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	if !first.PostedAt.Equal(wantTime) {
		t.Errorf("posted at = %v, want %v", first.PostedAt, wantTime)
	}
}

func TestFetchConvertsLineBreaks(t *testing.T) {
	posts := fetchFixture(t)

	want := "release notes:\nfirst line\nsecond line"
	if diff := cmp.Diff(want, posts[1].Text); diff != "" {
		t.Errorf("multi-line text mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchStripsReplyAndForwardBlocks(t *testing.T) {
	posts := fetchFixture(t)

	if diff := cmp.Diff("my own comment on the thread", posts[2].Text); diff != "" {
		t.Errorf("reply text mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("check this incident report", posts[3].Text); diff != "" {
		t.Errorf("forwarded text mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchDetectsMedia(t *testing.T) {
	posts := fetchFixture(t)

	tests := []struct {
		name     string
		post     model.Post
		wantURL  string
		wantKind model.MediaKind
	}{
		{
			name:     "photo from background image",
			post:     posts[4],
			wantURL:  "https://cdn.example.org/file/photo105.jpg",
			wantKind: model.MediaPhoto,
		},
		{
			name:     "video from source attribute",
			post:     posts[5],
			wantURL:  "https://cdn.example.org/file/video106.mp4",
			wantKind: model.MediaVideo,
		},
		{
			name:     "video from preview thumb",
			post:     posts[6],
			wantURL:  "https://cdn.example.org/file/preview107.jpg",
			wantKind: model.MediaVideo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.wantURL, tt.post.MediaURL); diff != "" {
				t.Errorf("media URL mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantKind, tt.post.MediaKind); diff != "" {
				t.Errorf("media kind mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchExtractsAuthor(t *testing.T) {
	posts := fetchFixture(t)

	last := posts[len(posts)-1]
	if diff := cmp.Diff("Alice", last.Author); diff != "" {
		t.Errorf("author mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("", posts[0].Author); diff != "" {
		t.Errorf("expected no author on plain post (-want +got):\n%s", diff)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		wantFetch bool
		wantParse bool
	}{
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantFetch: true,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantFetch: true,
		},
		{
			name:      "template mismatch",
			transport: &mockTransport{body: "<html><body>rate limited</body></html>", statusCode: 200},
			wantParse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.transport)
			_, err := s.Fetch(context.Background(), "devopsdigest")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var fe *FetchError
			var pe *ParseError
			if got := errors.As(err, &fe); got != tt.wantFetch {
				t.Errorf("FetchError = %v, want %v (err: %v)", got, tt.wantFetch, err)
			}
			if got := errors.As(err, &pe); got != tt.wantParse {
				t.Errorf("ParseError = %v, want %v (err: %v)", got, tt.wantParse, err)
			}
		})
	}
}

func TestFetchEmptyHistoryYieldsNoPosts(t *testing.T) {
	body := `<html><body><section class="tgme_channel_history"></section></body></html>`
	s := New(&mockTransport{body: body, statusCode: 200})

	posts, err := s.Fetch(context.Background(), "quietchannel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(0, len(posts)); diff != "" {
		t.Errorf("post count mismatch (-want +got):\n%s", diff)
	}
}
