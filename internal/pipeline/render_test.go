package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapses space runs",
			in:   "too   many\t\tspaces",
			want: "too many spaces",
		},
		{
			name: "preserves newlines",
			in:   "first line  \nsecond   line",
			want: "first line\nsecond line",
		},
		{
			name: "non-breaking spaces become plain",
			in:   "hard\u00a0\u00a0space",
			want: "hard space",
		},
		{
			name: "zero-width characters dropped",
			in:   "invisi\u200bble\ufeff",
			want: "invisible",
		},
		{
			name: "trims surrounding whitespace",
			in:   "  \n padded \n ",
			want: "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, CleanText(tt.in)); diff != "" {
				t.Errorf("clean mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderBody(t *testing.T) {
	receivedAt := time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)

	body := RenderBody("DevOps <Digest>", "Alice & Bob", "1 < 2 & 2 > 1", receivedAt)

	if !strings.Contains(body, "<b>DevOps &lt;Digest&gt;</b>") {
		t.Errorf("title not escaped: %q", body)
	}
	if !strings.Contains(body, "<i>Alice &amp; Bob</i>") {
		t.Errorf("author not escaped: %q", body)
	}
	if !strings.Contains(body, "<blockquote>1 &lt; 2 &amp; 2 &gt; 1</blockquote>") {
		t.Errorf("text not quoted and escaped: %q", body)
	}
	if !strings.Contains(body, "2025-05-01 10:30 UTC") {
		t.Errorf("receipt timestamp missing: %q", body)
	}
}

func TestRenderBodyWithoutAuthorOrText(t *testing.T) {
	receivedAt := time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)

	body := RenderBody("DevOps Digest", "", "", receivedAt)

	if strings.Contains(body, "<i>") {
		t.Errorf("unexpected author block: %q", body)
	}
	if strings.Contains(body, "<blockquote>") {
		t.Errorf("unexpected quote block: %q", body)
	}
	if !strings.Contains(body, "<b>DevOps Digest</b>") {
		t.Errorf("title missing: %q", body)
	}
}
