package presence

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/openfleet/gt06d/config"
)

func testContext() context.Context {
	log := logrus.New()
	log.SetLevel(logrus.TraceLevel)
	cfg := config.NewConfig(log, nil, nil, nil, nil, nil, nil, nil, nil)
	return context.WithValue(context.Background(), config.ContextConfigKey, cfg)
}

func TestDisabledTracker(t *testing.T) {
	ctx := testContext()

	tracker, err := NewTracker(ctx, &config.RedisConfig{Url: "", InstanceId: "node-1"})
	if err != nil {
		t.Fatalf("Failed to create disabled tracker. %v", err)
	}

	if tracker.Enabled() {
		t.Errorf("Tracker without a redis URL must be disabled")
	}

	// the frame callback refreshes presence on every received frame, so the
	// disabled tracker must stay an inert no-op under that call rate
	for i := 0; i < 100; i++ {
		tracker.MarkOnline(ctx, "123456789012345")
	}
	tracker.MarkOffline(ctx, "123456789012345")

	if _, ok := tracker.Lookup(ctx, "123456789012345"); ok {
		t.Errorf("Disabled tracker must not report presence")
	}

	err = tracker.Close()
	if err != nil {
		t.Errorf("Failed to close disabled tracker. %v", err)
	}
}

func TestNilTrackerIsInert(t *testing.T) {
	var tracker *Tracker

	if tracker.Enabled() {
		t.Errorf("Nil tracker must be disabled")
	}
}
