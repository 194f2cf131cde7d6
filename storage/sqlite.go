package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dcmshi/transit-planner/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	metaDB *sql.DB
	feeds  map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	db                  *sql.DB
	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/transit.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
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
		db.Close()
		return nil, fmt.Errorf("creating metadata tables: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		metaDB: db,
		feeds:  map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
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
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.metaDB.Query(query, params...)
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

func (s *SQLiteStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.metaDB.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_departure
)
VALUES (?, ?, ?, ?, ?, ?, ?)
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

func (s *SQLiteStorage) DeleteFeedMetadata(url string, hash string) error {
	_, err := s.metaDB.Exec(`
DELETE FROM feed
WHERE url = ? AND hash = ?
`, url, hash)
	return err
}

func (s *SQLiteStorage) ReliabilityRecord(routeID, stopID string, bucket model.TimeBucket) (*model.ReliabilityRecord, error) {
	row := s.metaDB.QueryRow(`
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
WHERE route_id = ? AND stop_id = ? AND time_bucket = ?
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

func (s *SQLiteStorage) WriteReliabilityRecord(rec *model.ReliabilityRecord) error {
	_, err := s.metaDB.Exec(`
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (s *SQLiteStorage) GetReader(feedID string) (FeedReader, error) {
	db, found := s.feeds[feedID]
	if found {
		return &SQLiteFeedReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feedID)
	}

	sourceName := s.Directory + "/" + feedID + ".db"
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feedID, sourceName)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s.feeds[feedID] = db

	return &SQLiteFeedReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (FeedWriter, error) {
	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.Directory + "/" + feedID + ".db"
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for name, query := range map[string]string{
		"stops": `
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    code TEXT,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);`,
		"routes": `
CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    short_name TEXT,
    long_name TEXT,
    type INTEGER NOT NULL
);`,
		"trips": `
CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    direction_id INTEGER
);
CREATE INDEX trips_route_id ON trips (route_id);
CREATE INDEX trips_service_id ON trips (service_id);
`,
		"stop_times": `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL
);
CREATE INDEX stop_times_trip_id ON stop_times (trip_id);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);
CREATE INDEX stop_times_departure_time ON stop_times (departure_time);
`,
		"calendar": `
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL
);`,
		"calendar_dates": `
CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	s.feeds[feedID] = db

	return &SQLiteFeedWriter{db: db}, nil
}

func (f *SQLiteFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := f.db.Exec(`
INSERT INTO stops (id, code, name, lat, lon)
VALUES (?, ?, ?, ?, ?)`,
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

func (f *SQLiteFeedWriter) WriteRoute(route *model.Route) error {
	_, err := f.db.Exec(`
INSERT INTO routes (id, short_name, long_name, type)
VALUES (?, ?, ?, ?)`,
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

func (f *SQLiteFeedWriter) BeginTrips() error {
	return nil
}

func (f *SQLiteFeedWriter) WriteTrip(trip *model.Trip) error {
	_, err := f.db.Exec(`
INSERT INTO trips (id, route_id, service_id, headsign, direction_id)
VALUES (?, ?, ?, ?, ?)`,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.DirectionID,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) EndTrips() error {
	return nil
}

func (f *SQLiteFeedWriter) WriteCalendar(cal *model.Calendar) error {
	days := [7]int{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if cal.Weekday&(1<<wd) != 0 {
			days[wd] = 1
		}
	}

	_, err := f.db.Exec(`
INSERT INTO calendar (service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (f *SQLiteFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := f.db.Exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) BeginStopTimes() error {
	// transaction with prepared statement.
	var err error
	f.stopTimeInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	f.stopTimeInsertQuery, err = f.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	_, err := f.stopTimeInsertQuery.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
	)
	if err != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		f.stopTimeInsertQuery = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndStopTimes() error {
	// commit transaction and clean up
	f.stopTimeInsertQuery.Close()
	err := f.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	f.stopTimeInsertTx = nil
	f.stopTimeInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	_, err := f.db.Exec(`ANALYZE;`)
	if err != nil {
		f.db.Close()
		return fmt.Errorf("analyzing database: %s", err)
	}

	return nil
}

func (f *SQLiteFeedReader) Stops() ([]*model.Stop, error) {
	rows, err := f.db.Query(`
SELECT id, code, name, lat, lon
FROM stops`)
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

func (f *SQLiteFeedReader) Routes() ([]*model.Route, error) {
	rows, err := f.db.Query(`
SELECT id, short_name, long_name, type
FROM routes`)
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

func (f *SQLiteFeedReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	weekday := strings.ToLower(parsedDate.Weekday().String())

	rows, err := f.db.Query(`
WITH
Exceptions AS (
	SELECT service_id, exception_type
	FROM calendar_dates
	WHERE date = ?
),
Regular AS (
	SELECT service_id
	FROM calendar
	WHERE `+weekday+` = 1 AND
	      start_date <= ? AND
	      end_date >= ?
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
`, date, date, date)
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

// The single bulk join deriving one row per (from_stop, to_stop,
// route) with the minimum travel time across all trips of that route
// serving the pair. Self-join on stop_sequence adjacency avoids
// iterating trips in application code.
func (f *SQLiteFeedReader) RouteEdges() ([]*RouteEdge, error) {
	rows, err := f.db.Query(`
SELECT
    a.stop_id,
    b.stop_id,
    trips.route_id,
    MIN(MAX(0,
          CAST(substr(b.arrival_time, 1, 2) AS INT) * 3600
        + CAST(substr(b.arrival_time, 3, 2) AS INT) * 60
        + CAST(substr(b.arrival_time, 5, 2) AS INT)
        - CAST(substr(a.departure_time, 1, 2) AS INT) * 3600
        - CAST(substr(a.departure_time, 3, 2) AS INT) * 60
        - CAST(substr(a.departure_time, 5, 2) AS INT)
    ))
FROM stop_times a
INNER JOIN stop_times b
    ON a.trip_id = b.trip_id
   AND b.stop_sequence = (
        SELECT MIN(c.stop_sequence)
        FROM stop_times c
        WHERE c.trip_id = a.trip_id AND c.stop_sequence > a.stop_sequence
   )
INNER JOIN trips ON trips.id = a.trip_id
GROUP BY a.stop_id, b.stop_id, trips.route_id`)
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

func (f *SQLiteFeedReader) NextTrip(q TripQuery) (string, error) {
	if len(q.ServiceIDs) == 0 {
		return "", nil
	}

	servicePlaceholders := []string{}
	params := []interface{}{q.ToStopID, q.FromStopID, q.RouteID}
	for _, sid := range q.ServiceIDs {
		servicePlaceholders = append(servicePlaceholders, "?")
		params = append(params, sid)
	}
	params = append(params, q.NotBefore)

	row := f.db.QueryRow(`
SELECT st_first.trip_id
FROM stop_times st_first
INNER JOIN trips ON trips.id = st_first.trip_id
INNER JOIN stop_times st_last
    ON st_last.trip_id = st_first.trip_id
   AND st_last.stop_id = ?
   AND st_last.stop_sequence > st_first.stop_sequence
WHERE st_first.stop_id = ?
  AND trips.route_id = ?
  AND trips.service_id IN (`+strings.Join(servicePlaceholders, ", ")+`)
  AND st_first.departure_time >= ?
ORDER BY st_first.departure_time ASC, st_first.trip_id ASC
LIMIT 1`, params...)

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

func (f *SQLiteFeedReader) StopTimes(tripID string) ([]*model.StopTime, error) {
	rows, err := f.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times
WHERE trip_id = ?
ORDER BY stop_sequence ASC`, tripID)
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

func (f *SQLiteFeedReader) StopDepartures(serviceIDs []string) ([]*StopDeparture, error) {
	if len(serviceIDs) == 0 {
		return []*StopDeparture{}, nil
	}

	servicePlaceholders := []string{}
	params := []interface{}{}
	for _, sid := range serviceIDs {
		servicePlaceholders = append(servicePlaceholders, "?")
		params = append(params, sid)
	}

	// Excludes each trip's final stop, which is not a boardable
	// departure.
	rows, err := f.db.Query(`
SELECT trips.route_id, stop_times.stop_id, stop_times.departure_time
FROM stop_times
INNER JOIN trips ON trips.id = stop_times.trip_id
WHERE trips.service_id IN (`+strings.Join(servicePlaceholders, ", ")+`)
  AND stop_times.stop_sequence < (
	SELECT MAX(st.stop_sequence)
	FROM stop_times st
	WHERE st.trip_id = stop_times.trip_id
  )`, params...)
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
