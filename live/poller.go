package live

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"github.com/dcmshi/transit-planner/downloader"
	"github.com/dcmshi/transit-planner/metrics"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultPollTimeout  = 20 * time.Second
	DefaultPollMaxSize  = 8 << 20 // 8 MB
)

// Poller fetches the realtime feeds on an interval, decodes them and
// publishes a fresh Snapshot through the Provider. Any of the three
// feed URLs may be empty; the snapshot simply carries no data of that
// kind.
type Poller struct {
	TripUpdatesURL      string
	VehiclePositionsURL string
	AlertsURL           string

	// Appended to each feed URL as ?key=. Some agencies require it.
	APIKey string

	Downloader downloader.Downloader
	Timeout    time.Duration
	MaxSize    int

	Provider *Provider
}

func NewPoller(provider *Provider, tripUpdatesURL, vehiclePositionsURL, alertsURL, apiKey string) *Poller {
	return &Poller{
		TripUpdatesURL:      tripUpdatesURL,
		VehiclePositionsURL: vehiclePositionsURL,
		AlertsURL:           alertsURL,
		APIKey:              apiKey,
		Downloader:          downloader.NewMemoryDownloader(),
		Timeout:             DefaultPollTimeout,
		MaxSize:             DefaultPollMaxSize,
		Provider:            provider,
	}
}

// Run polls until the context is cancelled. A failed poll keeps the
// previous snapshot in place: stale live data beats no data, and the
// scorer degrades gracefully either way.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			log.Printf("live poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches and decodes all configured feeds once, publishing the
// resulting snapshot.
func (p *Poller) Poll(ctx context.Context) error {
	err := p.poll(ctx)
	if err != nil {
		metrics.LivePolls.WithLabelValues("error").Inc()
		return err
	}
	metrics.LivePolls.WithLabelValues("ok").Inc()
	return nil
}

func (p *Poller) poll(ctx context.Context) error {
	snap := newSnapshot(time.Now().UTC())

	if p.TripUpdatesURL != "" {
		feed, err := p.fetch(ctx, p.TripUpdatesURL)
		if err != nil {
			return fmt.Errorf("fetching trip updates: %w", err)
		}
		if err := decodeTripUpdates(snap, feed); err != nil {
			return fmt.Errorf("decoding trip updates: %w", err)
		}
	}

	if p.VehiclePositionsURL != "" {
		feed, err := p.fetch(ctx, p.VehiclePositionsURL)
		if err != nil {
			return fmt.Errorf("fetching vehicle positions: %w", err)
		}
		if err := decodeVehiclePositions(snap, feed); err != nil {
			return fmt.Errorf("decoding vehicle positions: %w", err)
		}
	}

	if p.AlertsURL != "" {
		feed, err := p.fetch(ctx, p.AlertsURL)
		if err != nil {
			return fmt.Errorf("fetching alerts: %w", err)
		}
		if err := decodeAlerts(snap, feed); err != nil {
			return fmt.Errorf("decoding alerts: %w", err)
		}
	}

	p.Provider.Publish(snap)
	return nil
}

func (p *Poller) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	u := feedURL
	if p.APIKey != "" {
		parsed, err := url.Parse(feedURL)
		if err != nil {
			return nil, fmt.Errorf("parsing url: %w", err)
		}
		q := parsed.Query()
		q.Set("key", p.APIKey)
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	// Cache with zero TTL: every poll revalidates, and agencies
	// that serve validators answer unchanged feeds with a 304.
	return p.Downloader.Get(ctx, u, nil, downloader.GetOptions{
		Cache:   true,
		Timeout: p.Timeout,
		MaxSize: p.MaxSize,
	})
}

func unmarshalFeed(data []byte) (*gtfsproto.FeedMessage, error) {
	f := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	version := f.GetHeader().GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}
	if f.GetHeader().GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
		return nil, fmt.Errorf("feed incrementality %s not supported", f.GetHeader().GetIncrementality())
	}

	return f, nil
}

func decodeTripUpdates(snap *Snapshot, data []byte) error {
	f, err := unmarshalFeed(data)
	if err != nil {
		return err
	}
	snap.FeedTimestamp = f.GetHeader().GetTimestamp()

	for _, entity := range f.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		trip := tu.GetTrip()
		if trip.GetTripId() == "" {
			// Trips identified only by (route, direction,
			// start time) aren't supported.
			continue
		}

		switch trip.GetScheduleRelationship() {
		case gtfsproto.TripDescriptor_CANCELED:
			snap.cancelledTrips[trip.GetTripId()] = true
			if routeID := trip.GetRouteId(); routeID != "" {
				snap.routeCancellations[routeID]++
			}

		case gtfsproto.TripDescriptor_SCHEDULED:
			// Track the trip's latest known delay. The
			// last stop_time_update wins.
			for _, stu := range tu.GetStopTimeUpdate() {
				if stu.GetScheduleRelationship() != gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED {
					continue
				}
				var delay int32
				switch {
				case stu.Departure != nil:
					delay = stu.GetDeparture().GetDelay()
				case stu.Arrival != nil:
					delay = stu.GetArrival().GetDelay()
				default:
					continue
				}
				snap.delays[trip.GetTripId()] = time.Duration(delay) * time.Second
			}
		}
	}

	return nil
}

func decodeVehiclePositions(snap *Snapshot, data []byte) error {
	f, err := unmarshalFeed(data)
	if err != nil {
		return err
	}

	for _, entity := range f.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}
		tripID := vp.GetTrip().GetTripId()
		if tripID == "" {
			continue
		}
		seen := time.Unix(int64(vp.GetTimestamp()), 0).UTC()
		if prev, ok := snap.vehicleSeen[tripID]; !ok || seen.After(prev) {
			snap.vehicleSeen[tripID] = seen
		}
	}

	return nil
}

func decodeAlerts(snap *Snapshot, data []byte) error {
	f, err := unmarshalFeed(data)
	if err != nil {
		return err
	}

	for _, entity := range f.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}

		alert := &Alert{
			Cause:  a.GetCause().String(),
			Effect: a.GetEffect().String(),
		}
		if texts := a.GetHeaderText().GetTranslation(); len(texts) > 0 {
			alert.Header = texts[0].GetText()
		}

		for _, informed := range a.GetInformedEntity() {
			if routeID := informed.GetRouteId(); routeID != "" {
				alert.RouteIDs = append(alert.RouteIDs, routeID)
				snap.alertsByRoute[routeID] = append(snap.alertsByRoute[routeID], alert)
			}
			if stopID := informed.GetStopId(); stopID != "" {
				alert.StopIDs = append(alert.StopIDs, stopID)
				snap.alertsByStop[stopID] = append(snap.alertsByStop[stopID], alert)
			}
		}
	}

	return nil
}
