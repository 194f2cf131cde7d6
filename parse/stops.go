package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

type StopCSV struct {
	ID           string  `csv:"stop_id"`
	Code         string  `csv:"stop_code"`
	Name         string  `csv:"stop_name"`
	Desc         string  `csv:"stop_desc"`
	Lat          float64 `csv:"stop_lat"`
	Lon          float64 `csv:"stop_lon"`
	LocationType int8    `csv:"location_type"`
	// ParentStation string `csv:"parent_station"`
	// Timezone      string `csv:"stop_timezone"`
	// PlatformCode  string `csv:"platform_code"`
}

// ParseStops writes all boardable stops (location_type 0) and returns
// their IDs. Stations, entrances and generic nodes are skipped: trips
// only ever call at boardable stops, and the walk-edge index has no
// use for the rest.
func ParseStops(writer storage.FeedWriter, data io.Reader) (map[string]bool, error) {
	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	stopIDs := map[string]bool{}
	boardable := map[string]bool{}
	for _, st := range stopCsv {
		if stopIDs[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stopIDs[st.ID] = true

		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}

		if st.LocationType != 0 {
			continue
		}

		// stop_name, stop_lat and stop_lon are all required for
		// location_type 0.
		if st.Name == "" {
			return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
		}
		if st.Lat == 0 || st.Lon == 0 {
			return nil, fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
		}

		boardable[st.ID] = true

		err := writer.WriteStop(&model.Stop{
			ID:   st.ID,
			Code: st.Code,
			Name: st.Name,
			Lat:  st.Lat,
			Lon:  st.Lon,
		})
		if err != nil {
			return nil, fmt.Errorf("writing stop '%s': %w", st.ID, err)
		}
	}

	return boardable, nil
}
