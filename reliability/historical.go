package reliability

import (
	"fmt"
	"math"
	"time"

	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

// Reliability assumed for a (route, stop, bucket) with no recorded
// history: an on-time-equivalent of 0.8.
const NeutralPrior = 0.8

// On-time threshold when folding observations into records.
const onTimeThreshold = 5 * time.Minute

// History reads and updates the rolling reliability records in
// storage. Reads are safe while a seeding or recording job writes;
// the storage backends serialize record access.
type History struct {
	store storage.Storage
}

func NewHistory(store storage.Storage) *History {
	return &History{store: store}
}

// Prior returns the historical on-time-equivalent reliability for a
// (route, stop, bucket), in [0,1]. Falls back to NeutralPrior when no
// record exists.
//
// The reliability of a record is its on-time rate discounted by its
// cancellation rate, minus a delay penalty: reliability =
// (observed/scheduled) × (1 − cancellations/scheduled) −
// min(avgDelayMinutes/30, 1) × 0.2. A record averaging a 30-minute
// delay loses the full 0.2 even if every departure ran.
func (h *History) Prior(routeID, stopID string, bucket model.TimeBucket) (float64, error) {
	rec, err := h.store.ReliabilityRecord(routeID, stopID, bucket)
	if err != nil {
		return 0, fmt.Errorf("reading reliability record: %w", err)
	}
	if rec == nil || rec.ScheduledDepartures == 0 {
		return NeutralPrior, nil
	}

	onTime := float64(rec.ObservedDepartures) / float64(rec.ScheduledDepartures)
	cancelRate := float64(rec.CancellationCount) / float64(rec.ScheduledDepartures)

	avgDelayMin := 0.0
	if rec.ObservedDepartures > 0 {
		avgDelayMin = float64(rec.TotalDelaySeconds) / float64(rec.ObservedDepartures) / 60
	}
	delayPenalty := math.Min(avgDelayMin/30, 1) * 0.2

	reliability := onTime*(1-cancelRate) - delayPenalty
	if reliability < 0 {
		reliability = 0
	}
	if reliability > 1 {
		reliability = 1
	}
	return reliability, nil
}

// Record folds one observed departure into the rolling record for
// (route, stop, bucket). A cancelled departure counts against the
// schedule without an observation; a delay past the on-time threshold
// counts as scheduled but not on time.
func (h *History) Record(routeID, stopID string, bucket model.TimeBucket, delay time.Duration, cancelled bool, date string) error {
	rec, err := h.store.ReliabilityRecord(routeID, stopID, bucket)
	if err != nil {
		return fmt.Errorf("reading reliability record: %w", err)
	}
	if rec == nil {
		rec = &model.ReliabilityRecord{
			RouteID:         routeID,
			StopID:          stopID,
			TimeBucket:      bucket,
			WindowStartDate: date,
		}
	}

	rec.ScheduledDepartures++
	switch {
	case cancelled:
		rec.CancellationCount++
	case delay <= onTimeThreshold:
		rec.ObservedDepartures++
		rec.TotalDelaySeconds += int(delay.Seconds())
	default:
		rec.TotalDelaySeconds += int(delay.Seconds())
	}
	if date > rec.WindowEndDate {
		rec.WindowEndDate = date
	}

	if err := h.store.WriteReliabilityRecord(rec); err != nil {
		return fmt.Errorf("writing reliability record: %w", err)
	}
	return nil
}

// BucketFor classifies a departure into a time bucket. date is
// YYYYMMDD; departureSec is seconds past midnight, values >= 24h wrap
// into the same day's evening buckets (overnight trips are scheduled
// against their service date).
func BucketFor(date string, departureSec int) model.TimeBucket {
	t, err := time.Parse("20060102", date)
	if err == nil {
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return model.BucketWeekend
		}
	}

	hour := (departureSec / 3600) % 24
	switch {
	case hour >= 6 && hour < 9:
		return model.BucketWeekdayAMPeak
	case hour >= 15 && hour < 19:
		return model.BucketWeekdayPMPeak
	default:
		return model.BucketWeekdayOffpeak
	}
}
