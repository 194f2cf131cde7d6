package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/dcmshi/transit-planner/model"
)

// In memory implementation of Storage below. Used in tests, and
// useful as reference for the SQL backends.

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type memoryReliabilityKey struct {
	RouteID string
	StopID  string
	Bucket  model.TimeBucket
}

type MemoryStorage struct {
	Feeds       map[string]*MemoryStorageFeed
	Metadata    map[memoryMetadataKey]*FeedMetadata
	Reliability map[memoryReliabilityKey]*model.ReliabilityRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds:       map[string]*MemoryStorageFeed{},
		Metadata:    map[memoryMetadataKey]*FeedMetadata{},
		Reliability: map[memoryReliabilityKey]*model.ReliabilityRecord{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	feeds := []*FeedMetadata{}
	for _, metadata := range s.Metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		feeds = append(feeds, metadata)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	s.Metadata[memoryMetadataKey{feed.URL, feed.Hash}] = feed
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, hash string) error {
	key := memoryMetadataKey{url, hash}
	if _, found := s.Metadata[key]; !found {
		return fmt.Errorf("feed not found")
	}
	delete(s.Metadata, key)
	return nil
}

func (s *MemoryStorage) GetReader(feedID string) (FeedReader, error) {
	f, ok := s.Feeds[feedID]
	if !ok {
		return nil, fmt.Errorf("feed not found")
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	f := &MemoryStorageFeed{
		calendar:        map[string]*model.Calendar{},
		calendarDate:    map[string][]*model.CalendarDate{},
		routes:          map[string]*model.Route{},
		stops:           map[string]*model.Stop{},
		trips:           map[string]*model.Trip{},
		tripsByRoute:    map[string][]*model.Trip{},
		stopTimesByTrip: map[string][]*model.StopTime{},
	}

	s.Feeds[feed] = f

	return f, nil
}

func (s *MemoryStorage) ReliabilityRecord(routeID, stopID string, bucket model.TimeBucket) (*model.ReliabilityRecord, error) {
	rec, found := s.Reliability[memoryReliabilityKey{routeID, stopID, bucket}]
	if !found {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStorage) WriteReliabilityRecord(rec *model.ReliabilityRecord) error {
	cp := *rec
	s.Reliability[memoryReliabilityKey{rec.RouteID, rec.StopID, rec.TimeBucket}] = &cp
	return nil
}

type MemoryStorageFeed struct {
	calendar        map[string]*model.Calendar
	calendarDate    map[string][]*model.CalendarDate
	routes          map[string]*model.Route
	stops           map[string]*model.Stop
	trips           map[string]*model.Trip
	tripsByRoute    map[string][]*model.Trip
	stopTimesByTrip map[string][]*model.StopTime
}

func (f *MemoryStorageFeed) WriteStop(stop *model.Stop) error {
	f.stops[stop.ID] = stop
	return nil
}

func (f *MemoryStorageFeed) WriteRoute(route *model.Route) error {
	f.routes[route.ID] = route
	return nil
}

func (f *MemoryStorageFeed) BeginTrips() error {
	return nil
}

func (f *MemoryStorageFeed) WriteTrip(trip *model.Trip) error {
	f.trips[trip.ID] = trip
	f.tripsByRoute[trip.RouteID] = append(f.tripsByRoute[trip.RouteID], trip)
	return nil
}

func (f *MemoryStorageFeed) EndTrips() error {
	return nil
}

func (f *MemoryStorageFeed) WriteCalendar(row *model.Calendar) error {
	f.calendar[row.ServiceID] = row
	return nil
}

func (f *MemoryStorageFeed) WriteCalendarDate(row *model.CalendarDate) error {
	f.calendarDate[row.ServiceID] = append(f.calendarDate[row.ServiceID], row)
	return nil
}

func (f *MemoryStorageFeed) BeginStopTimes() error {
	return nil
}

func (f *MemoryStorageFeed) WriteStopTime(stopTime *model.StopTime) error {
	f.stopTimesByTrip[stopTime.TripID] = append(f.stopTimesByTrip[stopTime.TripID], stopTime)
	return nil
}

func (f *MemoryStorageFeed) EndStopTimes() error {
	for _, sts := range f.stopTimesByTrip {
		sort.Slice(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})
	}
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	return nil
}

func (f *MemoryStorageFeed) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for _, v := range f.stops {
		stops = append(stops, v)
	}
	return stops, nil
}

func (f *MemoryStorageFeed) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	for _, v := range f.routes {
		routes = append(routes, v)
	}
	return routes, nil
}

func (f *MemoryStorageFeed) ActiveServices(date string) ([]string, error) {
	services := map[string]bool{}

	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	for _, calendar := range f.calendar {
		if calendar.Weekday&(1<<parsedDate.Weekday()) == 0 {
			continue
		}
		if calendar.StartDate > date {
			continue
		}
		if calendar.EndDate < date {
			continue
		}
		services[calendar.ServiceID] = true
	}

	for _, cds := range f.calendarDate {
		for _, cd := range cds {
			if cd.Date == date {
				if cd.ExceptionType == 1 {
					services[cd.ServiceID] = true
				} else if cd.ExceptionType == 2 {
					services[cd.ServiceID] = false
				}
			}
		}
	}

	activeServices := []string{}
	for serviceID, active := range services {
		if active {
			activeServices = append(activeServices, serviceID)
		}
	}

	return activeServices, nil
}

func (f *MemoryStorageFeed) RouteEdges() ([]*RouteEdge, error) {
	type edgeKey struct {
		From  string
		To    string
		Route string
	}

	best := map[edgeKey]int{}
	for tripID, sts := range f.stopTimesByTrip {
		trip, found := f.trips[tripID]
		if !found {
			continue
		}
		for i := 0; i < len(sts)-1; i++ {
			a, b := sts[i], sts[i+1]
			travel := b.ArrivalSec() - a.DepartureSec()
			if travel < 0 {
				travel = 0
			}
			key := edgeKey{a.StopID, b.StopID, trip.RouteID}
			if prev, found := best[key]; !found || travel < prev {
				best[key] = travel
			}
		}
	}

	edges := []*RouteEdge{}
	for key, travel := range best {
		edges = append(edges, &RouteEdge{
			FromStopID:    key.From,
			ToStopID:      key.To,
			RouteID:       key.Route,
			TravelSeconds: travel,
		})
	}

	return edges, nil
}

func (f *MemoryStorageFeed) NextTrip(q TripQuery) (string, error) {
	serviceIDs := map[string]bool{}
	for _, sid := range q.ServiceIDs {
		serviceIDs[sid] = true
	}

	bestTrip := ""
	bestDeparture := ""
	for _, trip := range f.tripsByRoute[q.RouteID] {
		if !serviceIDs[trip.ServiceID] {
			continue
		}

		var from, to *model.StopTime
		for _, st := range f.stopTimesByTrip[trip.ID] {
			if st.StopID == q.FromStopID && from == nil {
				from = st
			} else if st.StopID == q.ToStopID && from != nil {
				to = st
				break
			}
		}
		if from == nil || to == nil {
			continue
		}
		if from.Departure < q.NotBefore {
			continue
		}

		// Fixed-width HHMMSS strings order lexicographically.
		if bestTrip == "" || from.Departure < bestDeparture ||
			(from.Departure == bestDeparture && trip.ID < bestTrip) {
			bestTrip = trip.ID
			bestDeparture = from.Departure
		}
	}

	return bestTrip, nil
}

func (f *MemoryStorageFeed) StopTimes(tripID string) ([]*model.StopTime, error) {
	sts := f.stopTimesByTrip[tripID]
	out := make([]*model.StopTime, len(sts))
	copy(out, sts)
	return out, nil
}

func (f *MemoryStorageFeed) StopDepartures(serviceIDs []string) ([]*StopDeparture, error) {
	serviceSet := map[string]bool{}
	for _, sid := range serviceIDs {
		serviceSet[sid] = true
	}

	deps := []*StopDeparture{}
	for tripID, sts := range f.stopTimesByTrip {
		trip, found := f.trips[tripID]
		if !found || !serviceSet[trip.ServiceID] {
			continue
		}
		// The final stop of a trip is not a boardable departure.
		for i := 0; i < len(sts)-1; i++ {
			deps = append(deps, &StopDeparture{
				RouteID:   trip.RouteID,
				StopID:    sts[i].StopID,
				Departure: sts[i].Departure,
			})
		}
	}

	return deps, nil
}
