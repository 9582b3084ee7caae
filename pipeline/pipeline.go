package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/openfleet/gt06d/config"
	"github.com/openfleet/gt06d/gt06"
	metrics2 "github.com/openfleet/gt06d/metrics"
	"github.com/openfleet/gt06d/model"
)

/*
Pipeline turns decoded tracker messages into persisted telemetry and
monitoring events. It never propagates failures back to the session: the
protocol ack was already sent by the time Ingest runs, and a failed database
write must not make the device retransmit.
*/
type Pipeline struct {
	ctx      context.Context
	devices  DeviceRegistry
	store    TelemetryStore
	events   EventSink
	detector *Detector
	metrics  metrics2.TrackerMetricsInterface
}

func NewPipeline(ctx context.Context, devices DeviceRegistry, store TelemetryStore, events EventSink, detector *Detector, metrics metrics2.TrackerMetricsInterface) *Pipeline {
	return &Pipeline{
		ctx:      ctx,
		devices:  devices,
		store:    store,
		events:   events,
		detector: detector,
		metrics:  metrics,
	}
}

// Ingest processes one decoded message with its resolved identity. Called
// once per message, in arrival order per connection.
func (p *Pipeline) Ingest(ctx context.Context, message gt06.TrackerMessage) {
	log := config.GetLogger(p.ctx)

	imei := message.Imei

	device, err := p.devices.FindDeviceByImei(ctx, imei)
	if err != nil {
		log.Errorf("Failed to look up device with %s IMEI. %v", imei, err)
		return
	}
	if device == nil {
		log.Warningf("Message rejected. %s IMEI is not registered.", imei)
		p.addRejectedMessages(1)
		p.publish(ctx, model.EventImeiNotRegistered, imei, nil)
		return
	}

	switch message.Message.Kind {
	case gt06.KindLogin:
		p.publish(ctx, model.EventConnected, imei, nil)
		p.publish(ctx, model.EventLogin, imei, map[string]string{
			"source": message.SourceAddress,
		})

	case gt06.KindStatus:
		p.ingestStatus(ctx, device, message.Message.Status)

	case gt06.KindLocation:
		p.ingestLocation(ctx, device, message.Message.Location)

	case gt06.KindAlarm:
		// Alarm business logic is not handled yet, log and publish only.
		log.Infof("Alarm %s received from device with %s IMEI.", message.Message.Alarm.Type, imei)
		p.publish(ctx, model.EventAlarm, imei, map[string]string{
			"alarmType": message.Message.Alarm.Type,
		})

	default:
		log.Debugf("Unhandled message kind %v from device with %s IMEI.", message.Message.Kind, imei)
	}
}

func (p *Pipeline) ingestStatus(ctx context.Context, device *model.Device, status *gt06.StatusData) {
	log := config.GetLogger(p.ctx)

	sample := &model.StatusSample{
		Imei:      device.Imei,
		Battery:   gt06.BatteryLevel(gt06.VoltageLabel(status.VoltageLevel)),
		Signal:    gt06.SignalLevel(gt06.SignalLabel(status.SignalLevel)),
		Ignition:  status.Ignition,
		Charging:  status.Charging,
		Relay:     status.Relay,
		CreatedAt: time.Now(),
	}

	// The detector compares against the previously persisted sample, so the
	// lookup must happen before the append. When history cannot be read the
	// derived checks are skipped, a nil previous would fake a state change.
	previous, err := p.store.LatestStatus(ctx, device.Imei)
	historyAvailable := err == nil
	if err != nil {
		log.Errorf("Failed to fetch latest status of device with %s IMEI. %v", device.Imei, err)
	}

	err = p.store.AppendStatus(ctx, sample)
	if err != nil {
		log.Errorf("Failed to persist status of device with %s IMEI. %v", device.Imei, err)
		return
	}

	p.publish(ctx, model.EventStatus, device.Imei, map[string]string{
		"battery":  fmt.Sprintf("%d", sample.Battery),
		"signal":   fmt.Sprintf("%d", sample.Signal),
		"ignition": fmt.Sprintf("%t", sample.Ignition),
		"charging": fmt.Sprintf("%t", sample.Charging),
		"relay":    fmt.Sprintf("%t", sample.Relay),
	})

	if p.detector != nil && historyAvailable {
		p.detector.OnNewStatus(ctx, device, previous, sample)
	}
}

func (p *Pipeline) ingestLocation(ctx context.Context, device *model.Device, location *gt06.LocationData) {
	log := config.GetLogger(p.ctx)

	sample := &model.LocationSample{
		Imei:        device.Imei,
		Latitude:    location.Latitude,
		Longitude:   location.Longitude,
		Speed:       location.Speed,
		Course:      location.Course,
		Satellites:  location.Satellites,
		RealTimeGps: location.RealTimeGps,
		CreatedAt:   time.Now(),
	}

	// Derived checks run against the history as it was before this sample.
	if p.detector != nil {
		p.detector.OnNewLocation(ctx, device, sample)
	}

	err := p.store.AppendLocation(ctx, sample)
	if err != nil {
		log.Errorf("Failed to persist location of device with %s IMEI. %v", device.Imei, err)
		return
	}

	p.publish(ctx, model.EventLocation, device.Imei, map[string]string{
		"latitude":  fmt.Sprintf("%f", sample.Latitude),
		"longitude": fmt.Sprintf("%f", sample.Longitude),
		"speed":     fmt.Sprintf("%f", sample.Speed),
	})
}

// OnDisconnected publishes the disconnect monitoring event for a torn down
// session.
func (p *Pipeline) OnDisconnected(ctx context.Context, imei string, sourceAddress string) {
	p.publish(ctx, model.EventDisconnected, imei, map[string]string{
		"source": sourceAddress,
	})
}

func (p *Pipeline) publish(ctx context.Context, kind model.EventKind, imei string, fields map[string]string) {
	if p.events == nil {
		return
	}

	p.events.Publish(ctx, model.Event{
		Kind:      kind,
		Imei:      imei,
		Fields:    fields,
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) addRejectedMessages(count uint64) {
	if p.metrics != nil {
		p.metrics.AddRejectedMessages(count)
	}
}
