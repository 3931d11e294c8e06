package producer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

// fakeQueue records pushed payloads.
type fakeQueue struct {
	mu     sync.Mutex
	pushed []string
}

func (q *fakeQueue) Push(_ context.Context, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, string(message))
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context) ([]byte, error) { return nil, ctx.Err() }
func (q *fakeQueue) Ping(context.Context) error              { return nil }
func (q *fakeQueue) Close() error                            { return nil }

func (q *fakeQueue) all() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pushed...)
}

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Markets</title>
    <item>
      <title>Fed holds rates steady</title>
      <link>https://example.com/fed-holds</link>
      <description>The central bank left its benchmark rate unchanged.</description>
      <pubDate>Mon, 24 Aug 2026 14:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Markets rally on pause</title>
      <link>https://example.com/markets-rally</link>
      <description>Equities climbed after the decision.</description>
    </item>
    <item>
      <title>Third story</title>
      <link>https://example.com/third</link>
      <description>Should be cut by the per-feed cap.</description>
    </item>
  </channel>
</rss>`

func newTestProducer(t *testing.T, feeds map[string]string, maxItems int) (*Producer, *fakeQueue) {
	t.Helper()
	q := &fakeQueue{}
	p, err := New(q, &Config{
		Feeds:           feeds,
		MaxItemsPerFeed: maxItems,
		UserID:          "producer",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, q
}

func TestBuildTask_DeterministicID(t *testing.T) {
	t.Parallel()

	p, _ := newTestProducer(t, map[string]string{"x": "http://unused"}, 3)
	item := &gofeed.Item{
		Title:       "Fed holds rates steady",
		Link:        "https://example.com/fed-holds",
		Description: "The central bank left its benchmark rate unchanged.",
	}

	t1, ok := p.buildTask("yahoo_finance", item)
	if !ok {
		t.Fatal("buildTask rejected a valid item")
	}
	t2, _ := p.buildTask("yahoo_finance", item)

	if t1.DocumentID != t2.DocumentID {
		t.Errorf("IDs differ for the same link: %s vs %s", t1.DocumentID, t2.DocumentID)
	}
	if t1.UserID != "producer" {
		t.Errorf("UserID = %q", t1.UserID)
	}
	if t1.Metadata["source"] != "yahoo_finance" {
		t.Errorf("source = %v", t1.Metadata["source"])
	}
	if t1.Metadata["link"] != item.Link {
		t.Errorf("link = %v", t1.Metadata["link"])
	}

	other, _ := p.buildTask("yahoo_finance", &gofeed.Item{
		Title: "x", Link: "https://example.com/other", Description: "y",
	})
	if other.DocumentID == t1.DocumentID {
		t.Error("different links produced the same document ID")
	}
}

func TestBuildTask_SkipsUnusableItems(t *testing.T) {
	t.Parallel()

	p, _ := newTestProducer(t, map[string]string{"x": "http://unused"}, 3)

	for _, item := range []*gofeed.Item{
		nil,
		{Title: "no link", Description: "d"},
		{Link: "https://example.com/empty"},
	} {
		if _, ok := p.buildTask("feed", item); ok {
			t.Errorf("buildTask accepted unusable item %+v", item)
		}
	}
}

func TestPollFeed_EnqueuesCappedItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testRSS))
	}))
	t.Cleanup(srv.Close)

	p, q := newTestProducer(t, map[string]string{"test_markets": srv.URL}, 2)

	if err := p.pollFeed(t.Context(), "test_markets", srv.URL); err != nil {
		t.Fatalf("pollFeed failed: %v", err)
	}

	pushed := q.all()
	if len(pushed) != 2 {
		t.Fatalf("expected 2 queued tasks (cap), got %d", len(pushed))
	}

	var first task
	if err := json.Unmarshal([]byte(pushed[0]), &first); err != nil {
		t.Fatalf("queued payload is not valid JSON: %v", err)
	}
	if first.Content == "" || first.DocumentID == "" {
		t.Errorf("incomplete task: %+v", first)
	}
	if first.Metadata["published_at"] == "" {
		t.Error("expected published_at metadata on dated item")
	}
}

func TestPollOnce_FeedFailureIsolated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testRSS))
	}))
	t.Cleanup(srv.Close)

	p, q := newTestProducer(t, map[string]string{
		"good": srv.URL,
		"bad":  "http://127.0.0.1:1/unreachable",
	}, 1)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	p.pollOnce(ctx)

	if got := len(q.all()); got != 1 {
		t.Errorf("expected the healthy feed to queue 1 task despite the broken one, got %d", got)
	}
}
