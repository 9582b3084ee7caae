package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/model"
)

/*
Detector compares each persisted sample against the device's history and
fires notifications for derived conditions. Notification delivery is best
effort and never propagates failures to the ingestion caller.

Ignition changes are edge triggered: repeated identical states stay silent.
Overspeed is level triggered on purpose, so sustained overspeeding keeps
notifying per sample.
*/
type Detector struct {
	ctx      context.Context
	store    TelemetryStore
	notifier Notifier
}

func NewDetector(ctx context.Context, store TelemetryStore, notifier Notifier) *Detector {
	return &Detector{
		ctx:      ctx,
		store:    store,
		notifier: notifier,
	}
}

// OnNewStatus runs the status derived checks. previous is the most recently
// persisted sample before this one, nil when none exists.
func (d *Detector) OnNewStatus(ctx context.Context, device *model.Device, previous *model.StatusSample, sample *model.StatusSample) {
	if previous == nil || previous.Ignition != sample.Ignition {
		state := "Off"
		if sample.Ignition {
			state = "On"
		}

		d.notify(ctx, model.Notification{
			Imei:    device.Imei,
			Title:   "Vehicle Status Update",
			Message: fmt.Sprintf("%s: Ignition is %s", device.VehicleNo, state),
			Data: map[string]string{
				"type":     "ignition_change",
				"ignition": fmt.Sprintf("%t", sample.Ignition),
			},
			Timestamp: time.Now(),
		})
	}
}

// OnNewLocation runs the location derived checks. It must be called before
// the sample is persisted: the moving-after-ignition-off heuristic compares
// history timestamps and the new sample would mask them.
func (d *Detector) OnNewLocation(ctx context.Context, device *model.Device, sample *model.LocationSample) {
	d.checkMovingAfterIgnitionOff(ctx, device)

	if device.SpeedLimit > 0 && sample.Speed > device.SpeedLimit {
		d.notify(ctx, model.Notification{
			Imei:    device.Imei,
			Title:   "Speed Alert",
			Message: fmt.Sprintf("%s: Vehicle is Overspeeding at %.0f km/h", device.VehicleNo, sample.Speed),
			Data: map[string]string{
				"type":       "overspeeding",
				"speed":      fmt.Sprintf("%f", sample.Speed),
				"speedLimit": fmt.Sprintf("%f", device.SpeedLimit),
			},
			Timestamp: time.Now(),
		})
	}
}

/*
checkMovingAfterIgnitionOff is a heuristic: when the newest ignition-off
status is strictly newer than the newest location sample the vehicle is
assumed to be moving without ignition. It can false positive when location
updates simply lag status updates.
*/
func (d *Detector) checkMovingAfterIgnitionOff(ctx context.Context, device *model.Device) {
	log := config.GetLogger(d.ctx)

	ignitionOff, err := d.store.LatestIgnitionOffStatus(ctx, device.Imei)
	if err != nil {
		log.Errorf("Failed to fetch latest ignition-off status of device with %s IMEI. %v", device.Imei, err)
		return
	}
	if ignitionOff == nil {
		return
	}

	location, err := d.store.LatestLocation(ctx, device.Imei)
	if err != nil {
		log.Errorf("Failed to fetch latest location of device with %s IMEI. %v", device.Imei, err)
		return
	}
	if location == nil {
		return
	}

	if ignitionOff.CreatedAt.After(location.CreatedAt) {
		d.notify(ctx, model.Notification{
			Imei:    device.Imei,
			Title:   "Vehicle Movement Alert",
			Message: fmt.Sprintf("%s: Vehicle is moving", device.VehicleNo),
			Data: map[string]string{
				"type": "moving_after_ignition_off",
			},
			Timestamp: time.Now(),
		})
	}
}

func (d *Detector) notify(ctx context.Context, notification model.Notification) {
	log := config.GetLogger(d.ctx)

	if d.notifier == nil {
		return
	}

	err := d.notifier.Notify(ctx, notification)
	if err != nil {
		log.Errorf("Failed to send %s notification for device with %s IMEI. %v", notification.Data["type"], notification.Imei, err)
	}
}
