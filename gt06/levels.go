package gt06

import "strings"

/*
Devices report battery voltage and GSM signal as small enumerated bytes. The
upstream stack historically passed them around as human readable labels, so
both directions are kept: raw byte to label, and label to the discretized
level persisted with every status sample. Unrecognized labels map to 0.
*/

var voltageLabels = []string{
	"no power (shutting down)",
	"extremely low battery",
	"very low battery (low battery alarm)",
	"low battery (can be used normally)",
	"medium",
	"high",
	"very high",
}

var signalLabels = []string{
	"no signal",
	"extremely weak signal",
	"very weak signal",
	"good signal",
	"strong signal",
}

type levelMapping struct {
	prefix string
	level  int
}

// Ordered: more specific prefixes must come before their shorter variants.
var batteryLevels = []levelMapping{
	{prefix: "no power", level: 0},
	{prefix: "extremely low", level: 1},
	{prefix: "very low", level: 2},
	{prefix: "very high", level: 6},
	{prefix: "low", level: 3},
	{prefix: "medium", level: 4},
	{prefix: "high", level: 5},
}

var signalLevels = []levelMapping{
	{prefix: "no signal", level: 0},
	{prefix: "extremely weak", level: 1},
	{prefix: "very weak", level: 2},
	{prefix: "good", level: 3},
	{prefix: "strong", level: 4},
}

func VoltageLabel(level byte) string {
	if int(level) >= len(voltageLabels) {
		return ""
	}
	return voltageLabels[level]
}

func SignalLabel(level byte) string {
	if int(level) >= len(signalLabels) {
		return ""
	}
	return signalLabels[level]
}

// BatteryLevel maps a voltage label to its 0-6 level, 0 when unrecognized.
func BatteryLevel(label string) int {
	return lookupLevel(batteryLevels, label)
}

// SignalLevel maps a signal label to its 0-4 level, 0 when unrecognized.
func SignalLevel(label string) int {
	return lookupLevel(signalLevels, label)
}

func lookupLevel(mappings []levelMapping, label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, m := range mappings {
		if strings.HasPrefix(label, m.prefix) {
			return m.level
		}
	}
	return 0
}
