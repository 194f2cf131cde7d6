package planner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dcmshi/transit-planner/downloader"
	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/metrics"
	"github.com/dcmshi/transit-planner/parse"
	"github.com/dcmshi/transit-planner/storage"
)

const (
	DefaultStaticRefreshInterval = 12 * time.Hour
	DefaultStaticTimeout         = 60 * time.Second
	DefaultStaticMaxSize         = 800 << 20 // 800 MB
)

var ErrNoActiveFeed = errors.New("no active feed found")

// Manager keeps the static schedule fresh. It downloads the
// configured feed, parses new versions into storage, and activates
// the most recent feed whose calendar covers today: rebuilding the
// graph and repointing the engine.
type Manager struct {
	StaticURL             string
	StaticHeaders         map[string]string
	StaticTimeout         time.Duration
	StaticMaxSize         int
	StaticRefreshInterval time.Duration
	Downloader            downloader.Downloader

	storage storage.Storage
	builder *graph.Builder
	engine  *Engine
}

func NewManager(s storage.Storage, builder *graph.Builder, engine *Engine, staticURL string) *Manager {
	return &Manager{
		StaticURL:             staticURL,
		StaticTimeout:         DefaultStaticTimeout,
		StaticMaxSize:         DefaultStaticMaxSize,
		StaticRefreshInterval: DefaultStaticRefreshInterval,
		Downloader:            downloader.NewMemoryDownloader(),

		storage: s,
		builder: builder,
		engine:  engine,
	}
}

// Run refreshes immediately, then on every tick of the refresh
// interval, until ctx is cancelled. A failed refresh keeps the
// previously activated feed in place.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		log.Printf("static refresh failed: %s", err)
	}

	ticker := time.NewTicker(m.StaticRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				log.Printf("static refresh failed: %s", err)
			}
		}
	}
}

// Refresh downloads the static feed, ingests it if its content hash
// is new, and activates the most recent feed active right now.
func (m *Manager) Refresh(ctx context.Context) error {
	err := m.refresh(ctx)
	if err != nil {
		metrics.StaticRefreshes.WithLabelValues("error").Inc()
		return err
	}
	metrics.StaticRefreshes.WithLabelValues("ok").Inc()
	return nil
}

func (m *Manager) refresh(ctx context.Context) error {
	body, err := m.Downloader.Get(
		ctx,
		m.StaticURL,
		m.StaticHeaders,
		downloader.GetOptions{
			Cache:   false,
			Timeout: m.StaticTimeout,
			MaxSize: m.StaticMaxSize,
		},
	)
	if err != nil {
		return fmt.Errorf("downloading feed at %s: %w", m.StaticURL, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	known, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	if len(known) == 0 {
		if err := m.ingest(hash, body); err != nil {
			return err
		}
		log.Printf("ingested feed %s (hash %.8s)", m.StaticURL, hash)
	}

	return m.Activate(time.Now())
}

// ingest parses a newly downloaded feed into storage under its
// content hash.
func (m *Manager) ingest(hash string, body []byte) error {
	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return fmt.Errorf("getting writer: %w", err)
	}
	defer writer.Close()

	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	metadata.Hash = hash
	metadata.URL = m.StaticURL
	metadata.RetrievedAt = time.Now().UTC()

	if err := m.storage.WriteFeedMetadata(metadata); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	return nil
}

// Activate selects the most recently retrieved feed whose calendar
// covers the given time, rebuilds the graph from it, and points the
// engine at it. Returns ErrNoActiveFeed when no stored feed covers
// the date.
func (m *Manager) Activate(when time.Time) error {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: m.StaticURL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.Before(feeds[j].RetrievedAt)
	})

	for i := len(feeds) - 1; i >= 0; i-- {
		ok, err := feedActive(feeds[i], when)
		if err != nil {
			return fmt.Errorf("checking if feed is active: %w", err)
		}
		if !ok {
			continue
		}

		return m.activateFeed(feeds[i])
	}

	return ErrNoActiveFeed
}

func (m *Manager) activateFeed(feed *storage.FeedMetadata) error {
	reader, err := m.storage.GetReader(feed.Hash)
	if err != nil {
		return fmt.Errorf("getting reader: %w", err)
	}

	timezone, err := time.LoadLocation(feed.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	if _, err := m.builder.Build(reader); err != nil {
		metrics.GraphBuilds.WithLabelValues("error").Inc()
		return fmt.Errorf("building graph: %w", err)
	}
	metrics.GraphBuilds.WithLabelValues("ok").Inc()

	m.engine.SetFeed(feed.Hash, reader, timezone)
	return nil
}

// feedActive reports whether the feed's calendar covers today in the
// feed's own timezone.
func feedActive(feed *storage.FeedMetadata, now time.Time) (bool, error) {
	feedTz, err := time.LoadLocation(feed.Timezone)
	if err != nil {
		return false, fmt.Errorf("loading timezone: %w", err)
	}

	nowThere := now.In(feedTz)
	todayThere := time.Date(
		nowThere.Year(),
		nowThere.Month(),
		nowThere.Day(),
		0, 0, 0, 0,
		feedTz,
	).Format("20060102")

	if feed.CalendarStartDate > todayThere {
		return false, nil
	}
	if feed.CalendarEndDate < todayThere {
		return false, nil
	}

	return true, nil
}
