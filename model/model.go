package model

import (
	"time"
)

// Device is a registered tracker unit. Telemetry from IMEIs without a Device
// record is dropped by the ingestion pipeline.
type Device struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	Imei       string    `bson:"imei" json:"imei"`
	VehicleNo  string    `bson:"vehicleNo" json:"vehicleNo"`
	SpeedLimit float64   `bson:"speedLimit" json:"speedLimit"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// StatusSample is one decoded status/heartbeat record. Samples are append
// only; relay toggles from the command path create new samples instead of
// updating old ones.
type StatusSample struct {
	Imei      string    `bson:"imei" json:"imei"`
	Battery   int       `bson:"battery" json:"battery"`
	Signal    int       `bson:"signal" json:"signal"`
	Ignition  bool      `bson:"ignition" json:"ignition"`
	Charging  bool      `bson:"charging" json:"charging"`
	Relay     bool      `bson:"relay" json:"relay"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// LocationSample is one decoded GPS fix, append only like StatusSample.
type LocationSample struct {
	Imei        string    `bson:"imei" json:"imei"`
	Latitude    float64   `bson:"latitude" json:"latitude"`
	Longitude   float64   `bson:"longitude" json:"longitude"`
	Speed       float64   `bson:"speed" json:"speed"`
	Course      float64   `bson:"course" json:"course"`
	Satellites  int       `bson:"satellites" json:"satellites"`
	RealTimeGps bool      `bson:"realTimeGps" json:"realTimeGps"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventLogin             EventKind = "login"
	EventLocation          EventKind = "location"
	EventStatus            EventKind = "status"
	EventAlarm             EventKind = "alarm"
	EventImeiNotRegistered EventKind = "imei_not_registered"
)

// Event is published to the monitoring sink for live dashboards.
type Event struct {
	Kind      EventKind         `json:"kind"`
	Imei      string            `json:"imei"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notification is a user facing alert derived from telemetry history.
type Notification struct {
	Imei      string            `json:"imei"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
