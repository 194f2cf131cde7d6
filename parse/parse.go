package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/dcmshi/transit-planner/storage"
)

// Tables the route engine loads. Anything else in the archive
// (shapes, fares, transfers) is ignored.
var feedFiles = []string{
	"agency.txt",
	"routes.txt",
	"stops.txt",
	"trips.txt",
	"stop_times.txt",
	"calendar.txt",
	"calendar_dates.txt",
}

// ParseStatic reads a zipped static GTFS feed and writes its records
// through the given FeedWriter.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	file, closeAll, err := openFeedFiles(buf)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	// LazyCSVReader survives sloppy quoting; the BOM reader strips
	// unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	// agency.txt carries the feed timezone and the agency IDs
	// routes may reference.
	agency, timezone, err := ParseAgency(file["agency.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing agency.txt: %w", err)
	}

	routes, err := ParseRoutes(writer, file["routes.txt"], agency)
	if err != nil {
		return nil, fmt.Errorf("parsing routes.txt: %w", err)
	}

	stops, err := ParseStops(writer, file["stops.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing stops.txt: %w", err)
	}

	// Services come from calendar.txt, calendar_dates.txt, or
	// both. Track the overall date range for feed activation.
	var calendarStart, calendarEnd string
	services := map[string]bool{}
	if file["calendar.txt"] != nil {
		services, calendarStart, calendarEnd, err = ParseCalendar(writer, file["calendar.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	if file["calendar_dates.txt"] != nil {
		cdServices, minDate, maxDate, err := ParseCalendarDates(writer, file["calendar_dates.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		for serviceID := range cdServices {
			services[serviceID] = true
		}
		if calendarStart == "" || minDate < calendarStart {
			calendarStart = minDate
		}
		if calendarEnd == "" || maxDate > calendarEnd {
			calendarEnd = maxDate
		}
	}

	if err := writer.BeginTrips(); err != nil {
		return nil, fmt.Errorf("beginning trips: %w", err)
	}
	trips, err := ParseTrips(writer, file["trips.txt"], routes, services)
	if err != nil {
		return nil, fmt.Errorf("parsing trips.txt: %w", err)
	}
	if err := writer.EndTrips(); err != nil {
		return nil, fmt.Errorf("ending trips: %w", err)
	}

	if err := writer.BeginStopTimes(); err != nil {
		return nil, fmt.Errorf("beginning stop_times: %w", err)
	}
	maxDeparture, err := ParseStopTimes(writer, file["stop_times.txt"], trips, stops)
	if err != nil {
		return nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}
	if err := writer.EndStopTimes(); err != nil {
		return nil, fmt.Errorf("ending stop_times: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return &storage.FeedMetadata{
		CalendarStartDate: calendarStart,
		CalendarEndDate:   calendarEnd,
		Timezone:          timezone,
		MaxDeparture:      maxDeparture,
	}, nil
}

// openFeedFiles locates the feed tables inside the archive, tolerating
// agencies that nest everything under a subdirectory.
func openFeedFiles(buf []byte) (map[string]io.ReadCloser, func(), error) {
	file := map[string]io.ReadCloser{}
	for _, name := range feedFiles {
		file[name] = nil
	}
	closeAll := func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, func() {}, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		closeAll()
		return nil, func() {}, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}
	for _, required := range []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("missing %s", required)
		}
	}

	return file, closeAll, nil
}
