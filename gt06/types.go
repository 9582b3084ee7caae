package gt06

import (
	"context"
	"net"
	"sync"
	"time"

	metrics2 "github.com/openfleet/gt06d/metrics"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindLogin
	KindLocation
	KindStatus
	KindAlarm
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindLocation:
		return "location"
	case KindStatus:
		return "status"
	case KindAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// UnknownImei tags messages arriving on a session which has not seen a login
// frame yet. The ingestion pipeline rejects them as unregistered downstream.
const UnknownImei = "unknown"

type LocationData struct {
	Time        time.Time
	Latitude    float64
	Longitude   float64
	Speed       float64
	Course      float64
	Satellites  int
	GpsFixed    bool
	RealTimeGps bool
}

type StatusData struct {
	Ignition     bool
	Charging     bool
	Relay        bool
	VoltageLevel byte
	SignalLevel  byte
}

type AlarmData struct {
	Location LocationData
	Type     string
}

/*
Message is the normalized output of the frame decoder. Kind selects which
payload pointer is set; Imei is only present on login frames, all other
frames inherit the identity bound to their session. Ack holds the response
bytes owed to the device, nil when the frame type needs no response.
*/
type Message struct {
	Kind     Kind
	Imei     string
	Serial   uint16
	Ack      []byte
	Location *LocationData
	Status   *StatusData
	Alarm    *AlarmData
}

type TrackerMessage struct {
	Message       Message
	Imei          string
	SourceAddress string
}

/*
PacketArrivedCallback function used to report a decoded message with its
resolved device identity. Called synchronously per connection so frames of a
single TCP stream are always processed in arrival order.
*/
type PacketArrivedCallback func(ctx context.Context, message TrackerMessage)

// DisconnectedCallback fires after a session bound to an IMEI is torn down
// and removed from the registry.
type DisconnectedCallback func(ctx context.Context, imei string, sourceAddress string)

type Server struct {
	wg           *sync.WaitGroup
	host         string
	port         int
	callback     PacketArrivedCallback
	disconnected DisconnectedCallback
	registry     *Registry
	metrics      metrics2.TrackerMetricsInterface
	ctx          context.Context
	localCtx     context.Context
	stopFunc     context.CancelFunc
	listener     net.Listener
}
