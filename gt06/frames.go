package gt06

import (
	"encoding/binary"
	"fmt"
	"time"
)

/*
GT06 family frame layout:

	0x78 0x78 | length(1) | protocol(1) | content | serial(2) | crc(2) | 0x0D 0x0A

where length counts everything from the protocol number up to and including
the CRC. Some device variants use 0x79 0x79 as start marker with identical
semantics; the decoder treats both as equivalent. The CRC is CRC-ITU (X.25)
computed over length..serial.
*/
const (
	startByte    = 0x78
	altStartByte = 0x79
	endByte1     = 0x0D
	endByte2     = 0x0A

	protoLogin    = 0x01
	protoLocation = 0x12
	protoStatus   = 0x13
	protoAlarm    = 0x16
	protoCommand  = 0x80

	// length byte covers protocol number, serial and CRC at minimum
	minLengthByte = 5
	// start(2) + length(1) + end(2)
	frameOverhead = 5
)

const (
	alarmSos        = 0x01
	alarmPowerCut   = 0x02
	alarmVibration  = 0x04
	alarmFenceIn    = 0x10
	alarmFenceOut   = 0x11
	alarmLowBattery = 0x20
	alarmOverspeed  = 0x40
)

/*
FrameDecoder extracts complete frames from a TCP byte stream. It is stateful:
chunks may contain partial frames and a frame may span any number of chunks,
so the undecoded tail is retained between Feed calls. One decoder belongs to
exactly one connection.
*/
type FrameDecoder struct {
	buf []byte
}

func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

/*
Feed appends a received chunk and returns every complete message found so
far. Malformed frames (bad checksum, length mismatch, broken end marker) are
dropped and reported in the error list without desynchronizing the stream;
none of the returned errors is fatal to the connection.
*/
func (d *FrameDecoder) Feed(chunk []byte) ([]Message, []error) {
	d.buf = append(d.buf, chunk...)

	var messages []Message
	var errs []error

	for {
		start := findStartMarker(d.buf)
		if start < 0 {
			// Keep the last byte, a start marker may be split across chunks.
			if len(d.buf) > 1 {
				errs = append(errs, fmt.Errorf("dropped %d bytes without start marker", len(d.buf)-1))
				d.buf = d.buf[len(d.buf)-1:]
			}
			return messages, errs
		}
		if start > 0 {
			errs = append(errs, fmt.Errorf("dropped %d bytes before start marker", start))
			d.buf = d.buf[start:]
		}

		if len(d.buf) < 3 {
			return messages, errs
		}

		length := int(d.buf[2])
		if length < minLengthByte {
			errs = append(errs, fmt.Errorf("frame length byte %d too small", length))
			d.buf = d.buf[2:]
			continue
		}

		total := length + frameOverhead
		if len(d.buf) < total {
			// incomplete frame, wait for the next chunk
			return messages, errs
		}

		frame := d.buf[:total]

		if frame[total-2] != endByte1 || frame[total-1] != endByte2 {
			errs = append(errs, fmt.Errorf("frame end marker mismatch: %02x %02x", frame[total-2], frame[total-1]))
			d.buf = d.buf[2:]
			continue
		}

		want := binary.BigEndian.Uint16(frame[total-4 : total-2])
		if got := Checksum(frame[2 : total-4]); got != want {
			errs = append(errs, fmt.Errorf("frame checksum mismatch: got %04x want %04x", got, want))
			d.buf = d.buf[2:]
			continue
		}

		message, err := parseFrame(frame)
		d.buf = d.buf[total:]
		if err != nil {
			errs = append(errs, err)
			continue
		}

		messages = append(messages, message)
	}
}

// Pending returns the number of buffered bytes not yet decoded.
func (d *FrameDecoder) Pending() int {
	return len(d.buf)
}

func findStartMarker(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if (buf[i] == startByte && buf[i+1] == startByte) ||
			(buf[i] == altStartByte && buf[i+1] == altStartByte) {
			return i
		}
	}
	return -1
}

func parseFrame(frame []byte) (Message, error) {
	length := int(frame[2])
	proto := frame[3]
	content := frame[4 : 4+length-minLengthByte]
	serial := binary.BigEndian.Uint16(frame[len(frame)-6 : len(frame)-4])

	switch proto {
	case protoLogin:
		imei, err := decodeImei(content)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Kind:   KindLogin,
			Imei:   imei,
			Serial: serial,
			Ack:    BuildAck(protoLogin, serial),
		}, nil

	case protoLocation:
		location, err := decodeLocation(content)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Kind:     KindLocation,
			Serial:   serial,
			Location: location,
		}, nil

	case protoStatus:
		status, err := decodeStatus(content)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Kind:   KindStatus,
			Serial: serial,
			Ack:    BuildAck(protoStatus, serial),
			Status: status,
		}, nil

	case protoAlarm:
		alarm, err := decodeAlarm(content)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Kind:   KindAlarm,
			Serial: serial,
			Ack:    BuildAck(protoAlarm, serial),
			Alarm:  alarm,
		}, nil

	default:
		// Not an error: unknown protocol numbers are forwarded for
		// observability and need no response.
		return Message{Kind: KindUnknown, Serial: serial}, nil
	}
}

func decodeImei(content []byte) (string, error) {
	if len(content) < 8 {
		return "", fmt.Errorf("login content too short: %d bytes", len(content))
	}

	// 15 digit IMEI packed as 16 BCD digits with a leading zero nibble
	digits := make([]byte, 0, 16)
	for _, b := range content[:8] {
		digits = append(digits, '0'+(b>>4), '0'+(b&0x0F))
	}
	return string(digits[1:]), nil
}

func decodeLocation(content []byte) (*LocationData, error) {
	if len(content) < 18 {
		return nil, fmt.Errorf("location content too short: %d bytes", len(content))
	}

	timestamp, err := decodeTimestamp(content[:6])
	if err != nil {
		return nil, err
	}

	satellites := int(content[6] & 0x0F)
	rawLat := binary.BigEndian.Uint32(content[7:11])
	rawLon := binary.BigEndian.Uint32(content[11:15])
	speed := float64(content[15])
	courseStatus := binary.BigEndian.Uint16(content[16:18])

	// coordinates come in 1/30000 minute units
	latitude := float64(rawLat) / 1800000.0
	longitude := float64(rawLon) / 1800000.0
	if courseStatus&0x0400 == 0 {
		// bit 10 set means north
		latitude = -latitude
	}
	if courseStatus&0x0800 != 0 {
		// bit 11 set means west
		longitude = -longitude
	}

	return &LocationData{
		Time:        timestamp,
		Latitude:    latitude,
		Longitude:   longitude,
		Speed:       speed,
		Course:      float64(courseStatus & 0x03FF),
		Satellites:  satellites,
		GpsFixed:    courseStatus&0x1000 != 0,
		RealTimeGps: courseStatus&0x2000 == 0,
	}, nil
}

func decodeStatus(content []byte) (*StatusData, error) {
	if len(content) < 3 {
		return nil, fmt.Errorf("status content too short: %d bytes", len(content))
	}

	terminalInfo := content[0]

	return &StatusData{
		Ignition:     terminalInfo&0x02 != 0,
		Charging:     terminalInfo&0x04 != 0,
		Relay:        terminalInfo&0x80 != 0,
		VoltageLevel: content[1],
		SignalLevel:  content[2],
	}, nil
}

func decodeAlarm(content []byte) (*AlarmData, error) {
	if len(content) < 19 {
		return nil, fmt.Errorf("alarm content too short: %d bytes", len(content))
	}

	location, err := decodeLocation(content[:18])
	if err != nil {
		return nil, err
	}

	var alarmType string
	switch content[18] {
	case alarmSos:
		alarmType = "sos"
	case alarmPowerCut:
		alarmType = "powerCut"
	case alarmVibration:
		alarmType = "vibration"
	case alarmFenceIn:
		alarmType = "geofenceEnter"
	case alarmFenceOut:
		alarmType = "geofenceExit"
	case alarmLowBattery:
		alarmType = "lowBattery"
	case alarmOverspeed:
		alarmType = "overspeed"
	default:
		alarmType = fmt.Sprintf("unknown_%02x", content[18])
	}

	return &AlarmData{
		Location: *location,
		Type:     alarmType,
	}, nil
}

func decodeTimestamp(raw []byte) (time.Time, error) {
	year := 2000 + int(raw[0]>>4)*10 + int(raw[0]&0x0F)
	month := int(raw[1]>>4)*10 + int(raw[1]&0x0F)
	day := int(raw[2]>>4)*10 + int(raw[2]&0x0F)
	hour := int(raw[3]>>4)*10 + int(raw[3]&0x0F)
	minute := int(raw[4]>>4)*10 + int(raw[4]&0x0F)
	second := int(raw[5]>>4)*10 + int(raw[5]&0x0F)

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid frame timestamp %02d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// BuildAck renders the response frame for an ack requiring message, echoing
// its protocol number and serial so the device considers the frame delivered.
func BuildAck(proto byte, serial uint16) []byte {
	return EncodeFrame(proto, nil, serial)
}

// EncodeFrame renders a complete frame around the given protocol number and
// content bytes.
func EncodeFrame(proto byte, content []byte, serial uint16) []byte {
	length := len(content) + minLengthByte

	frame := make([]byte, 0, length+frameOverhead)
	frame = append(frame, startByte, startByte, byte(length), proto)
	frame = append(frame, content...)
	frame = append(frame, byte(serial>>8), byte(serial))

	crc := Checksum(frame[2:])
	frame = append(frame, byte(crc>>8), byte(crc))
	frame = append(frame, endByte1, endByte2)

	return frame
}

// Checksum implements CRC-ITU (X.25) as used by the GT06 family.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
