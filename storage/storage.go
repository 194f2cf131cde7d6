package storage

import (
	"time"

	"github.com/dcmshi/transit-planner/model"
)

// Storage holds parsed GTFS schedule data, one feed per hash, plus
// the rolling reliability records that survive feed refreshes.
type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	DeleteFeedMetadata(url string, hash string) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash.
	GetWriter(feed string) (FeedWriter, error)

	// Reliability record for (route, stop, bucket), or nil when no
	// observations exist yet.
	ReliabilityRecord(routeID, stopID string, bucket model.TimeBucket) (*model.ReliabilityRecord, error)

	// Upserts a reliability record, replacing prior counts for the
	// same (route, stop, bucket).
	WriteReliabilityRecord(rec *model.ReliabilityRecord) error
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for a downloaded static GTFS feed. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL               string
	Hash              string
	RetrievedAt       time.Time
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
	MaxDeparture      string
}

// Writes GTFS records for a single feed.
//
// As stop_times.txt tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou. Same
// deal for trips.
type FeedWriter interface {
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	BeginTrips() error
	WriteTrip(trip *model.Trip) error
	EndTrips() error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	BeginStopTimes() error
	WriteStopTime(stopTime *model.StopTime) error
	EndStopTimes() error
	Close() error
}

// Read access to one feed's schedule, shaped for the graph builder
// and the trip resolver rather than for generic GTFS browsing.
type FeedReader interface {
	Stops() ([]*model.Stop, error)
	Routes() ([]*model.Route, error)

	// Service IDs for all services active on the given
	// date. Date is given as YYYYMMDD.
	ActiveServices(date string) ([]string, error)

	// One row per (from_stop, to_stop, route) with the minimum
	// scheduled travel time across every trip of that route
	// traversing the pair. This is the bulk join the graph builder
	// runs instead of walking trips one by one.
	RouteEdges() ([]*RouteEdge, error)

	// ID of the earliest trip satisfying the query, or "" when the
	// timetable has none.
	NextTrip(q TripQuery) (string, error)

	// All stop_times of a trip, ordered by stop_sequence.
	StopTimes(tripID string) ([]*model.StopTime, error)

	// Every scheduled (route, stop, departure) event for the given
	// services. Used to seed reliability priors.
	StopDepartures(serviceIDs []string) ([]*StopDeparture, error)
}

// An aggregated scheduled connection between two adjacent stops on
// one route.
type RouteEdge struct {
	FromStopID    string
	ToStopID      string
	RouteID       string
	TravelSeconds int
}

// Filter for NextTrip(). Matches trips of RouteID on one of the
// ServiceIDs that depart FromStopID at or after NotBefore ("HHMMSS")
// and call at ToStopID with a later stop_sequence.
type TripQuery struct {
	RouteID    string
	FromStopID string
	ToStopID   string
	ServiceIDs []string
	NotBefore  string
}

type StopDeparture struct {
	RouteID   string
	StopID    string
	Departure string // HHMMSS
}
