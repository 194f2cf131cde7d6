package reliability

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

// Days of schedule counted into synthetic priors.
const SeedWindowDays = 14

type bucketPrior struct {
	onTimeRate      float64
	cancelRate      float64
	avgDelaySeconds int
}

// Synthetic per-bucket priors used until real observations accumulate.
var seedPriors = map[model.TimeBucket]bucketPrior{
	model.BucketWeekdayAMPeak:  {onTimeRate: 0.85, cancelRate: 0.03, avgDelaySeconds: 180},
	model.BucketWeekdayPMPeak:  {onTimeRate: 0.80, cancelRate: 0.05, avgDelaySeconds: 300},
	model.BucketWeekdayOffpeak: {onTimeRate: 0.90, cancelRate: 0.02, avgDelaySeconds: 120},
	model.BucketWeekend:        {onTimeRate: 0.75, cancelRate: 0.08, avgDelaySeconds: 240},
}

// Seed counts every scheduled departure per (route, stop, bucket)
// over a SeedWindowDays window starting at startDate, and writes
// reliability records derived from the synthetic bucket priors.
// Existing records for the same keys are replaced: seeding resets
// history to the synthetic baseline.
func Seed(store storage.Storage, reader storage.FeedReader, startDate time.Time) error {
	type key struct {
		routeID string
		stopID  string
		bucket  model.TimeBucket
	}
	counts := map[key]int{}

	windowStart := startDate.Format("20060102")
	var windowEnd string

	for day := 0; day < SeedWindowDays; day++ {
		date := startDate.AddDate(0, 0, day).Format("20060102")
		windowEnd = date

		services, err := reader.ActiveServices(date)
		if err != nil {
			return fmt.Errorf("reading active services for %s: %w", date, err)
		}
		if len(services) == 0 {
			continue
		}

		departures, err := reader.StopDepartures(services)
		if err != nil {
			return fmt.Errorf("reading departures for %s: %w", date, err)
		}
		for _, d := range departures {
			bucket := BucketFor(date, model.HHMMSSToSeconds(d.Departure))
			counts[key{routeID: d.RouteID, stopID: d.StopID, bucket: bucket}]++
		}
	}

	written := 0
	for k, n := range counts {
		prior := seedPriors[k.bucket]
		rec := &model.ReliabilityRecord{
			RouteID:             k.routeID,
			StopID:              k.stopID,
			TimeBucket:          k.bucket,
			ScheduledDepartures: n,
			ObservedDepartures:  int(math.Round(float64(n) * prior.onTimeRate)),
			CancellationCount:   int(math.Round(float64(n) * prior.cancelRate)),
			TotalDelaySeconds:   n * prior.avgDelaySeconds,
			WindowStartDate:     windowStart,
			WindowEndDate:       windowEnd,
		}
		if err := store.WriteReliabilityRecord(rec); err != nil {
			return fmt.Errorf("writing seed record: %w", err)
		}
		written++
	}

	log.Printf("seeded %d reliability records over %d days", written, SeedWindowDays)
	return nil
}
