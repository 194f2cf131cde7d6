package planner

import (
	"context"
	"fmt"
	"testing"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	"github.com/dcmshi/transit-planner/downloader"
	"github.com/dcmshi/transit-planner/live"
	"github.com/dcmshi/transit-planner/model"
)

type fakeDownloader struct {
	responses map[string][]byte
}

func (f *fakeDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options downloader.GetOptions,
) ([]byte, error) {
	body, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("no response for %s", url)
	}
	return body, nil
}

func cancellationFeed(t *testing.T, tripID, routeID string) []byte {
	t.Helper()

	feed := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsproto.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(1736150400),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:               proto.String(tripID),
						RouteId:              proto.String(routeID),
						ScheduleRelationship: gtfsproto.TripDescriptor_CANCELED.Enum(),
					},
				},
			},
		},
	}

	body, err := proto.Marshal(feed)
	require.NoError(t, err)
	return body
}

// A cancellation arriving between two identical queries must change
// the risk of the second response, even though the resolved legs come
// out of the response cache.
func TestFindRoutesReflectsCancellation(t *testing.T) {
	stack := newTestStack(t, fixtureCorridor(), testRoutingConfig())

	q := Query{Origin: "A", Destination: "C", Date: "20250106", NotBefore: "08:00:00"}

	before, err := stack.engine.FindRoutes(q)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, model.RiskLow, before[0].RiskLabel)

	poller := live.NewPoller(stack.provider, "http://rt/trip-updates", "", "", "")
	poller.Downloader = &fakeDownloader{
		responses: map[string][]byte{
			"http://rt/trip-updates": cancellationFeed(t, "t1", "r1"),
		},
	}
	require.NoError(t, poller.Poll(context.Background()))

	after, err := stack.engine.FindRoutes(q)
	require.NoError(t, err)
	require.Len(t, after, 2)

	// Same legs, new risk.
	require.Equal(t, before[0].Legs, after[0].Legs)
	assert.Equal(t, 1.0, after[0].RiskScore)
	assert.Equal(t, model.RiskHigh, after[0].RiskLabel)
	assert.True(t, after[0].LegRisks[0].IsCancelled)

	// The unaffected direct trip keeps its baseline risk.
	assert.Equal(t, "t3", after[1].Legs[0].TripID)
	assert.Equal(t, model.RiskLow, after[1].RiskLabel)
}
