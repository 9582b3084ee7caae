package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openfleet/gt06d/model"
	"github.com/openfleet/gt06d/storage"
)

func TestIgnitionChangeNotifications(t *testing.T) {
	testCases := []struct {
		Name                  string
		Sequence              []bool
		ExpectedNotifications int
	}{
		{
			Name:                  "FirstSampleAlwaysNotifies",
			Sequence:              []bool{true},
			ExpectedNotifications: 1,
		},
		{
			Name:                  "RepeatedStateStaysSilent",
			Sequence:              []bool{true, true, true},
			ExpectedNotifications: 1,
		},
		{
			Name:                  "EveryEdgeNotifies",
			Sequence:              []bool{false, true, false},
			ExpectedNotifications: 3,
		},
		{
			Name:                  "AlternatingStates",
			Sequence:              []bool{true, false, true, false},
			ExpectedNotifications: 4,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(test *testing.T) {
			ctx := testContext()
			pipeline, _, rec := newTestPipeline(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

			for _, ignition := range testCase.Sequence {
				pipeline.Ingest(ctx, statusMessage(ignition))
			}

			count := rec.countNotifications("ignition_change")
			if count != testCase.ExpectedNotifications {
				test.Errorf("Wrong notification count! Expected: %d Actual: %d", testCase.ExpectedNotifications, count)
			}
		})
	}
}

func TestOverspeedLevelTriggered(t *testing.T) {
	ctx := testContext()
	pipeline, _, rec := newTestPipeline(&model.Device{Imei: testImei, VehicleNo: "ABC-123", SpeedLimit: 80})

	pipeline.Ingest(ctx, locationMessage(70))
	pipeline.Ingest(ctx, locationMessage(100))
	pipeline.Ingest(ctx, locationMessage(100))
	pipeline.Ingest(ctx, locationMessage(60))

	// level triggered: both overspeeding samples notify
	if count := rec.countNotifications("overspeeding"); count != 2 {
		t.Errorf("Wrong overspeed notification count: %d", count)
	}
}

func TestOverspeedDisabledWithoutLimit(t *testing.T) {
	ctx := testContext()
	pipeline, _, rec := newTestPipeline(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

	pipeline.Ingest(ctx, locationMessage(200))

	if count := rec.countNotifications("overspeeding"); count != 0 {
		t.Errorf("Overspeed must not fire without a speed limit, got %d notifications", count)
	}
}

func TestMovingAfterIgnitionOff(t *testing.T) {
	ctx := testContext()
	pipeline, store, rec := newTestPipeline(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

	// older location history, then the ignition goes off
	err := store.AppendLocation(ctx, &model.LocationSample{
		Imei:      testImei,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to seed location history. %v", err)
	}

	pipeline.Ingest(ctx, statusMessage(false))

	// a new location while the newest ignition-off status is fresher than
	// the location history means the vehicle moves without ignition
	pipeline.Ingest(ctx, locationMessage(10))

	if count := rec.countNotifications("moving_after_ignition_off"); count != 1 {
		t.Errorf("Expected a movement notification, got %d", count)
	}

	// the persisted location is now the newest sample, a further location
	// must stay silent
	pipeline.Ingest(ctx, locationMessage(10))

	if count := rec.countNotifications("moving_after_ignition_off"); count != 1 {
		t.Errorf("Movement notification must not repeat, got %d", count)
	}
}

// brokenHistoryStore fails every latest-status query.
type brokenHistoryStore struct {
	*storage.MemoryStore
}

func (s *brokenHistoryStore) LatestStatus(_ context.Context, _ string) (*model.StatusSample, error) {
	return nil, fmt.Errorf("history backend is down")
}

func TestNoIgnitionNotificationWithoutHistory(t *testing.T) {
	ctx := testContext()

	store := &brokenHistoryStore{MemoryStore: storage.NewMemoryStore()}
	store.AddDevice(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

	rec := &recorder{}
	detector := NewDetector(ctx, store, rec)
	pipeline := NewPipeline(ctx, store, store, rec, detector, nil)

	// with unreadable history a nil previous sample must not fake an edge
	pipeline.Ingest(ctx, statusMessage(true))
	pipeline.Ingest(ctx, statusMessage(true))

	if count := rec.countNotifications("ignition_change"); count != 0 {
		t.Errorf("Expected no notifications while history is unreadable, got %d", count)
	}

	// the samples themselves are still persisted
	if store.StatusCount(testImei) != 2 {
		t.Errorf("Wrong persisted status count: %d", store.StatusCount(testImei))
	}
}

func TestNoMovementAlertWithIgnitionOn(t *testing.T) {
	ctx := testContext()
	pipeline, _, rec := newTestPipeline(&model.Device{Imei: testImei, VehicleNo: "ABC-123"})

	pipeline.Ingest(ctx, statusMessage(true))
	pipeline.Ingest(ctx, locationMessage(50))

	if count := rec.countNotifications("moving_after_ignition_off"); count != 0 {
		t.Errorf("Movement alert must not fire with ignition on, got %d", count)
	}
}
