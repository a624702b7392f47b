package collect

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const defaultMaxPerFeed = 20

// FeedEntry represents a parsed feed entry.
type FeedEntry struct {
	URL         string
	Title       string
	PublishedAt *time.Time
	Content     string
	Source      string
	Category    string
	Topic       string
}

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL      string
	Name     string
	Category string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds      []FeedConfig
	maxPerFeed int
	parser     *gofeed.Parser
	limiter    *rate.Limiter
}

// NewFeedParser creates a new FeedParser. A nil limiter means no throttling.
func NewFeedParser(feeds []FeedConfig, maxPerFeed int, client *http.Client, limiter *rate.Limiter) *FeedParser {
	if maxPerFeed <= 0 {
		maxPerFeed = defaultMaxPerFeed
	}
	p := gofeed.NewParser()
	p.UserAgent = "pulsefeed/1.0 (news aggregator)"
	if client != nil {
		p.Client = client
	}
	return &FeedParser{feeds: feeds, maxPerFeed: maxPerFeed, parser: p, limiter: limiter}
}

// ParseAll parses all configured feeds and returns entries published at or after cutoff.
func (fp *FeedParser) ParseAll(ctx context.Context, cutoff time.Time) []FeedEntry {
	var all []FeedEntry

	for _, fc := range fp.feeds {
		if fp.limiter != nil {
			if err := fp.limiter.Wait(ctx); err != nil {
				log.Printf("Feed collection stopped: %v", err)
				break
			}
		}

		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := fp.parseFeed(ctx, fc, name, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		all = append(all, entries...)
		log.Printf("Parsed %d entries from %s [%s]", len(entries), name, fc.Category)
	}

	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, fc FeedConfig, sourceName string, cutoff time.Time) ([]FeedEntry, error) {
	feed, err := fp.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= fp.maxPerFeed {
			break
		}

		entry := parseItem(item, sourceName, fc.Category)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.PublishedAt, cutoff) {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func parseItem(item *gofeed.Item, source, category string) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published != nil {
		utc := published.UTC()
		published = &utc
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}

	return &FeedEntry{
		URL:         itemURL,
		Title:       title,
		PublishedAt: published,
		Content:     content,
		Source:      source,
		Category:    category,
		Topic:       itemTopic(item, source),
	}
}

// itemTopic is the item's first non-empty category tag, or the source name.
func itemTopic(item *gofeed.Item, source string) string {
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return source
}

func isWithinWindow(published *time.Time, cutoff time.Time) bool {
	if published == nil {
		return true // benefit of the doubt
	}
	return !published.Before(cutoff)
}

func stripHTML(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
