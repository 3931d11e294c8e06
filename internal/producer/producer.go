// Package producer implements the live news feed poller. It fetches RSS
// feeds from financial news outlets, converts fresh items into ingestion
// tasks, and pushes them onto the queue consumed by the ingestion worker.
// The poller is invoked by the `marketpulse produce` CLI command.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/onslaught7/market-pulse-engine/internal/logging"
	"github.com/onslaught7/market-pulse-engine/internal/queue"
)

// defaultFeeds is the fixed set of financial news sources polled when no
// explicit feed map is configured.
var defaultFeeds = map[string]string{
	"yahoo_finance": "https://finance.yahoo.com/news/rssindex",
	"coindesk":      "https://www.coindesk.com/arc/outboundfeeds/rss/",
	"wsj_markets":   "https://feeds.a.dj.com/rss/RSSMarketsMain.xml",
}

// Config holds the configuration for the feed poller.
type Config struct {
	// Feeds maps a source label to its RSS URL. Defaults to the built-in
	// financial feeds if empty.
	Feeds map[string]string

	// MaxItemsPerFeed caps how many of the newest items are taken from each
	// feed per poll. Defaults to 3 if zero.
	MaxItemsPerFeed int

	// PollInterval is the time between polls. Defaults to 60s if zero.
	PollInterval time.Duration

	// UserID is stamped on every produced task. Defaults to "producer".
	UserID string

	// HTTPTimeout is the timeout for each feed fetch. Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// Logger is the structured logger. If nil, [logging.New] is used.
	Logger *slog.Logger
}

// Producer polls RSS feeds and enqueues the resulting ingestion tasks.
type Producer struct {
	// queue receives the serialized tasks.
	queue queue.TaskQueue

	// parser fetches and parses RSS/Atom feeds.
	parser *gofeed.Parser

	// cfg holds the resolved configuration.
	cfg *Config

	// log is the structured logger for this producer instance.
	log *slog.Logger
}

// task is the wire shape consumed by the ingestion worker.
type task struct {
	UserID     string         `json:"user_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// New constructs a Producer from the task queue and config.
func New(q queue.TaskQueue, cfg *Config) (*Producer, error) {
	if q == nil {
		return nil, fmt.Errorf("producer: queue must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = defaultFeeds
	}
	if cfg.MaxItemsPerFeed <= 0 {
		cfg.MaxItemsPerFeed = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.UserID == "" {
		cfg.UserID = "producer"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New("producer")
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.HTTPTimeout}
	parser.UserAgent = "marketpulse/1.0 (financial news ingestion)"

	return &Producer{
		queue:  q,
		parser: parser,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Run polls all feeds immediately, then on every tick of the poll interval,
// until the context is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	p.log.Info("producer starting",
		slog.Int("feeds", len(p.cfg.Feeds)),
		slog.Duration("interval", p.cfg.PollInterval),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("producer shutting down")
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce fetches every configured feed concurrently. A failing feed is
// logged and skipped; it never blocks the other feeds.
func (p *Producer) pollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for name, url := range p.cfg.Feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.pollFeed(ctx, name, url); err != nil {
				p.log.Warn("feed poll failed",
					slog.String("feed", name),
					slog.Any("error", err),
				)
			}
		}()
	}
	wg.Wait()
}

// pollFeed fetches one feed and enqueues tasks for its newest items.
func (p *Producer) pollFeed(ctx context.Context, name, url string) error {
	feed, err := p.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}

	queued := 0
	for _, item := range feed.Items {
		if queued >= p.cfg.MaxItemsPerFeed {
			break
		}
		t, ok := p.buildTask(name, item)
		if !ok {
			continue
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task for %s: %w", item.Link, err)
		}
		if err := p.queue.Push(ctx, raw); err != nil {
			return fmt.Errorf("enqueue %s: %w", t.DocumentID, err)
		}
		queued++
	}

	p.log.Info("feed polled",
		slog.String("feed", name),
		slog.Int("items", len(feed.Items)),
		slog.Int("queued", queued),
	)
	return nil
}

// buildTask converts one feed item into an ingestion task. The document ID
// is derived from the item link so re-polling the same story produces the
// same ID and the worker's upsert stays idempotent. Items without a link or
// usable text are skipped.
func (p *Producer) buildTask(feedName string, item *gofeed.Item) (task, bool) {
	if item == nil || item.Link == "" {
		return task{}, false
	}

	content := strings.TrimSpace(item.Title)
	if desc := strings.TrimSpace(item.Description); desc != "" {
		if content != "" {
			content += "\n\n"
		}
		content += desc
	}
	if content == "" {
		return task{}, false
	}

	meta := map[string]any{
		"source": feedName,
		"title":  item.Title,
		"link":   item.Link,
	}
	if item.PublishedParsed != nil {
		meta["published_at"] = item.PublishedParsed.UTC().Format(time.RFC3339)
	}

	return task{
		UserID:     p.cfg.UserID,
		DocumentID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.Link)).String(),
		Content:    content,
		Metadata:   meta,
	}, true
}
