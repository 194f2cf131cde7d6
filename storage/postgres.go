package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/dcmshi/transit-planner/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tripBuf     []*model.Trip
	stopTimeBuf []*model.StopTime
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if db.Ping() != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS feed;
DROP TABLE IF EXISTS reliability_records;
DROP TABLE IF EXISTS calendar;
DROP TABLE IF EXISTS calendar_dates;
DROP TABLE IF EXISTS stops;
DROP TABLE IF EXISTS stop_times;
DROP TABLE IF EXISTS routes;
DROP TABLE IF EXISTS trips;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (hash, url)
);

CREATE TABLE IF NOT EXISTS reliability_records (
    route_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    time_bucket TEXT NOT NULL,
    scheduled_departures INTEGER NOT NULL,
    observed_departures INTEGER NOT NULL,
    total_delay_seconds INTEGER NOT NULL,
    cancellation_count INTEGER NOT NULL,
    window_start_date TEXT NOT NULL,
    window_end_date TEXT NOT NULL,
    PRIMARY KEY (route_id, stop_id, time_bucket)
);`)
	if err != nil {
		return nil, fmt.Errorf("creating metadata tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_departure
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.URL != "" {
		params = append(params, filter.URL)
		conditions = append(conditions, fmt.Sprintf("url = $%d", len(params)))
	}
	if filter.Hash != "" {
		params = append(params, filter.Hash)
		conditions = append(conditions, fmt.Sprintf("hash = $%d", len(params)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*FeedMetadata
	for rows.Next() {
		var feed FeedMetadata
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	return feeds, nil
}

func (s *PSQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_departure
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_departure = excluded.max_departure
`,
		feed.Hash,
		feed.URL,
		feed.RetrievedAt,
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) DeleteFeedMetadata(url string, hash string) error {
	_, err := s.db.Exec(`
DELETE FROM feed
WHERE url = $1 AND hash = $2
`, url, hash)
	return err
}

func (s *PSQLStorage) ReliabilityRecord(routeID, stopID string, bucket model.TimeBucket) (*model.ReliabilityRecord, error) {
	row := s.db.QueryRow(`
SELECT
    route_id,
    stop_id,
    time_bucket,
    scheduled_departures,
    observed_departures,
    total_delay_seconds,
    cancellation_count,
    window_start_date,
    window_end_date
FROM reliability_records
WHERE route_id = $1 AND stop_id = $2 AND time_bucket = $3
`, routeID, stopID, string(bucket))

	rec := &model.ReliabilityRecord{}
	err := row.Scan(
		&rec.RouteID,
		&rec.StopID,
		&rec.TimeBucket,
		&rec.ScheduledDepartures,
		&rec.ObservedDepartures,
		&rec.TotalDelaySeconds,
		&rec.CancellationCount,
		&rec.WindowStartDate,
		&rec.WindowEndDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reliability record: %w", err)
	}

	return rec, nil
}

func (s *PSQLStorage) WriteReliabilityRecord(rec *model.ReliabilityRecord) error {
	_, err := s.db.Exec(`
INSERT INTO reliability_records (
    route_id,
    stop_id,
    time_bucket,
    scheduled_departures,
    observed_departures,
    total_delay_seconds,
    cancellation_count,
    window_start_date,
    window_end_date
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (route_id, stop_id, time_bucket) DO UPDATE SET
    scheduled_departures = excluded.scheduled_departures,
    observed_departures = excluded.observed_departures,
    total_delay_seconds = excluded.total_delay_seconds,
    cancellation_count = excluded.cancellation_count,
    window_start_date = excluded.window_start_date,
    window_end_date = excluded.window_end_date
`,
		rec.RouteID,
		rec.StopID,
		string(rec.TimeBucket),
		rec.ScheduledDepartures,
		rec.ObservedDepartures,
		rec.TotalDelaySeconds,
		rec.CancellationCount,
		rec.WindowStartDate,
		rec.WindowEndDate,
	)
	if err != nil {
		return fmt.Errorf("writing reliability record: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(feedID string) (FeedReader, error) {
	return &PSQLFeedReader{
		id: feedID,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(feedID string) (FeedWriter, error) {
	tables := map[string]string{
		"stops": `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    PRIMARY KEY(hash, id)
);`,
		"routes": `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    short_name TEXT,
    long_name TEXT,
    type INTEGER NOT NULL,
    PRIMARY KEY(hash, id)
);`,
		"trips": `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    direction_id INTEGER,
    PRIMARY KEY(hash, id)
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (route_id);
CREATE INDEX IF NOT EXISTS trips_service_id ON trips (service_id);
`,
		"stop_times": `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    PRIMARY KEY(hash, trip_id, stop_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_trip_id ON stop_times (trip_id);
CREATE INDEX IF NOT EXISTS stop_times_stop_id ON stop_times (stop_id);
CREATE INDEX IF NOT EXISTS stop_times_departure_time ON stop_times (departure_time);
`,
		"calendar": `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY(hash, service_id)
);`,
		"calendar_dates": `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY(hash, service_id, date)
);`,
	}

	// Create tables if they don't exist
	for name, query := range tables {
		_, err := s.db.Exec(query)
		if err != nil {
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	// In case feed already exists, delete all records
	for name := range tables {
		_, err := s.db.Exec(`DELETE FROM `+name+` WHERE hash = $1`, feedID)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %s", name, err)
		}
	}

	return &PSQLFeedWriter{
		id: feedID,
		db: s.db,
	}, nil
}

func (w *PSQLFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (hash, id, code, name, lat, lon)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.id,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Lat,
		stop.Lon,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteRoute(route *model.Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (hash, id, short_name, long_name, type)
VALUES ($1, $2, $3, $4, $5)`,
		w.id,
		route.ID,
		route.ShortName,
		route.LongName,
		route.Type,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip *model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"trips", "hash", "id", "route_id", "service_id", "headsign", "direction_id",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, trip := range w.tripBuf {
		_, err = stmt.Exec(
			w.id, trip.ID, trip.RouteID, trip.ServiceID, trip.Headsign, trip.DirectionID,
		)
		if err != nil {
			return fmt.Errorf("COPY trip: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.tripBuf = nil

	return nil
}

func (w *PSQLFeedWriter) WriteCalendar(cal *model.Calendar) error {
	days := [7]int{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if cal.Weekday&(1<<wd) != 0 {
			days[wd] = 1
		}
	}

	_, err := w.db.Exec(`
INSERT INTO calendar (hash, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		days[time.Monday],
		days[time.Tuesday],
		days[time.Wednesday],
		days[time.Thursday],
		days[time.Friday],
		days[time.Saturday],
		days[time.Sunday],
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}

	return nil
}

func (w *PSQLFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (hash, service_id, date, exception_type)
VALUES ($1, $2, $3, $4)`,
		w.id,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}

	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop times: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop times: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"stop_times", "hash", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, st := range w.stopTimeBuf {
		_, err = stmt.Exec(
			w.id, st.TripID, st.StopID, st.StopSequence, st.Arrival, st.Departure,
		)
		if err != nil {
			return fmt.Errorf("COPY stop_time: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.stopTimeBuf = nil

	return nil
}

func (w *PSQLFeedWriter) Close() error {
	return nil
}

func (r *PSQLFeedReader) Stops() ([]*model.Stop, error) {
	rows, err := r.db.Query(`
SELECT id, code, name, lat, lon
FROM stops
WHERE hash = $1`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying for stops: %w", err)
	}
	defer rows.Close()

	stops := []*model.Stop{}
	for rows.Next() {
		stop := &model.Stop{}
		err = rows.Scan(
			&stop.ID,
			&stop.Code,
			&stop.Name,
			&stop.Lat,
			&stop.Lon,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}

	return stops, nil
}

func (r *PSQLFeedReader) Routes() ([]*model.Route, error) {
	rows, err := r.db.Query(`
SELECT id, short_name, long_name, type
FROM routes
WHERE hash = $1`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying for routes: %w", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		route := &model.Route{}
		err = rows.Scan(
			&route.ID,
			&route.ShortName,
			&route.LongName,
			&route.Type,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, nil
}

func (r *PSQLFeedReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	weekday := strings.ToLower(parsedDate.Weekday().String())

	rows, err := r.db.Query(`
WITH
Exceptions AS (
	SELECT service_id, exception_type
	FROM calendar_dates
	WHERE hash = $1 AND date = $2
),
Regular AS (
	SELECT service_id
	FROM calendar
	WHERE hash = $1 AND `+weekday+` = 1 AND
	      start_date <= $2 AND
	      end_date >= $2
)
SELECT service_id
FROM Regular
WHERE service_id NOT IN (
	SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id
FROM Exceptions
WHERE exception_type = 1
`, r.id, date)
	if err != nil {
		return nil, fmt.Errorf("querying for active services: %w", err)
	}
	defer rows.Close()

	activeServices := []string{}
	for rows.Next() {
		var serviceID string
		err = rows.Scan(&serviceID)
		if err != nil {
			return nil, fmt.Errorf("scanning active services: %w", err)
		}
		activeServices = append(activeServices, serviceID)
	}

	return activeServices, nil
}

func (r *PSQLFeedReader) RouteEdges() ([]*RouteEdge, error) {
	rows, err := r.db.Query(`
SELECT
    a.stop_id,
    b.stop_id,
    trips.route_id,
    MIN(GREATEST(0,
          CAST(substr(b.arrival_time, 1, 2) AS INT) * 3600
        + CAST(substr(b.arrival_time, 3, 2) AS INT) * 60
        + CAST(substr(b.arrival_time, 5, 2) AS INT)
        - CAST(substr(a.departure_time, 1, 2) AS INT) * 3600
        - CAST(substr(a.departure_time, 3, 2) AS INT) * 60
        - CAST(substr(a.departure_time, 5, 2) AS INT)
    ))
FROM stop_times a
INNER JOIN stop_times b
    ON b.hash = a.hash
   AND b.trip_id = a.trip_id
   AND b.stop_sequence = (
        SELECT MIN(c.stop_sequence)
        FROM stop_times c
        WHERE c.hash = a.hash AND c.trip_id = a.trip_id AND c.stop_sequence > a.stop_sequence
   )
INNER JOIN trips ON trips.hash = a.hash AND trips.id = a.trip_id
WHERE a.hash = $1
GROUP BY a.stop_id, b.stop_id, trips.route_id`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying for route edges: %w", err)
	}
	defer rows.Close()

	edges := []*RouteEdge{}
	for rows.Next() {
		edge := &RouteEdge{}
		err = rows.Scan(
			&edge.FromStopID,
			&edge.ToStopID,
			&edge.RouteID,
			&edge.TravelSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route edge: %w", err)
		}
		edges = append(edges, edge)
	}

	return edges, nil
}

func (r *PSQLFeedReader) NextTrip(q TripQuery) (string, error) {
	if len(q.ServiceIDs) == 0 {
		return "", nil
	}

	row := r.db.QueryRow(`
SELECT st_first.trip_id
FROM stop_times st_first
INNER JOIN trips ON trips.hash = st_first.hash AND trips.id = st_first.trip_id
INNER JOIN stop_times st_last
    ON st_last.hash = st_first.hash
   AND st_last.trip_id = st_first.trip_id
   AND st_last.stop_id = $2
   AND st_last.stop_sequence > st_first.stop_sequence
WHERE st_first.hash = $1
  AND st_first.stop_id = $3
  AND trips.route_id = $4
  AND trips.service_id = ANY($5)
  AND st_first.departure_time >= $6
ORDER BY st_first.departure_time ASC, st_first.trip_id ASC
LIMIT 1`,
		r.id,
		q.ToStopID,
		q.FromStopID,
		q.RouteID,
		pq.Array(q.ServiceIDs),
		q.NotBefore,
	)

	var tripID string
	err := row.Scan(&tripID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scanning next trip: %w", err)
	}

	return tripID, nil
}

func (r *PSQLFeedReader) StopTimes(tripID string) ([]*model.StopTime, error) {
	rows, err := r.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times
WHERE hash = $1 AND trip_id = $2
ORDER BY stop_sequence ASC`, r.id, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying for stop times: %w", err)
	}
	defer rows.Close()

	sts := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		err = rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.StopSequence,
			&st.Arrival,
			&st.Departure,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		sts = append(sts, st)
	}

	return sts, nil
}

func (r *PSQLFeedReader) StopDepartures(serviceIDs []string) ([]*StopDeparture, error) {
	if len(serviceIDs) == 0 {
		return []*StopDeparture{}, nil
	}

	rows, err := r.db.Query(`
SELECT trips.route_id, stop_times.stop_id, stop_times.departure_time
FROM stop_times
INNER JOIN trips ON trips.hash = stop_times.hash AND trips.id = stop_times.trip_id
WHERE stop_times.hash = $1
  AND trips.service_id = ANY($2)
  AND stop_times.stop_sequence < (
	SELECT MAX(st.stop_sequence)
	FROM stop_times st
	WHERE st.hash = stop_times.hash AND st.trip_id = stop_times.trip_id
  )`, r.id, pq.Array(serviceIDs))
	if err != nil {
		return nil, fmt.Errorf("querying for stop departures: %w", err)
	}
	defer rows.Close()

	deps := []*StopDeparture{}
	for rows.Next() {
		dep := &StopDeparture{}
		err = rows.Scan(&dep.RouteID, &dep.StopID, &dep.Departure)
		if err != nil {
			return nil, fmt.Errorf("scanning stop departure: %w", err)
		}
		deps = append(deps, dep)
	}

	return deps, nil
}
