package pipeline

import (
	"context"
	"time"

	"github.com/openfleet/gt06d/model"
)

// DeviceRegistry gates telemetry: only IMEIs with a device record are
// ingested. A nil device with nil error means the IMEI is not registered.
type DeviceRegistry interface {
	FindDeviceByImei(ctx context.Context, imei string) (*model.Device, error)
}

// TelemetryStore persists append only status and location history and serves
// the latest-sample queries the derived event detector needs.
type TelemetryStore interface {
	AppendStatus(ctx context.Context, sample *model.StatusSample) error
	AppendLocation(ctx context.Context, sample *model.LocationSample) error
	LatestStatus(ctx context.Context, imei string) (*model.StatusSample, error)
	LatestLocation(ctx context.Context, imei string) (*model.LocationSample, error)
	LatestIgnitionOffStatus(ctx context.Context, imei string) (*model.StatusSample, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers user facing alerts. Best effort: implementations must
// not be relied on for delivery and callers only log failures.
type Notifier interface {
	Notify(ctx context.Context, notification model.Notification) error
}

// EventSink receives monitoring events for live dashboards. Publish must not
// block ingestion and must swallow its own delivery failures.
type EventSink interface {
	Publish(ctx context.Context, event model.Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event model.Event)

func (f EventSinkFunc) Publish(ctx context.Context, event model.Event) {
	f(ctx, event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification model.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, notification model.Notification) error {
	return f(ctx, notification)
}

// MultiSink fans one event out to several sinks.
func MultiSink(sinks ...EventSink) EventSink {
	return EventSinkFunc(func(ctx context.Context, event model.Event) {
		for _, sink := range sinks {
			sink.Publish(ctx, event)
		}
	})
}
