package gt06

import "fmt"

const (
	CommandRelayOn  = "relay-on"
	CommandRelayOff = "relay-off"
)

// Fixed command table. The ASCII payloads cut and restore the oil/electricity
// circuit on GT06 family relays.
var commandTable = map[string]string{
	CommandRelayOn:  "HFYD#",
	CommandRelayOff: "DYD#",
}

// KnownCommand reports whether name resolves in the command table.
func KnownCommand(name string) bool {
	_, ok := commandTable[name]
	return ok
}

/*
EncodeCommand renders a server to device command frame (protocol 0x80). The
content carries a one byte command length, a four byte server flag echoed
back by the device, and the ASCII command itself. Delivery is fire and
forget: success means the bytes were handed to the transport, the applied
relay state shows up later in the device's status samples.
*/
func EncodeCommand(name string, serial uint16) ([]byte, error) {
	ascii, ok := commandTable[name]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	content := make([]byte, 0, 5+len(ascii))
	content = append(content, byte(4+len(ascii)))
	content = append(content, 0x00, 0x00, 0x00, 0x00)
	content = append(content, ascii...)

	return EncodeFrame(protoCommand, content, serial), nil
}
