package gt06

import "testing"

func TestBatteryLevel(t *testing.T) {
	testCases := []struct {
		Name          string
		Label         string
		ExpectedLevel int
	}{
		{Name: "NoPower", Label: "no power (shutting down)", ExpectedLevel: 0},
		{Name: "ExtremelyLow", Label: "extremely low battery", ExpectedLevel: 1},
		{Name: "VeryLow", Label: "very low battery (low battery alarm)", ExpectedLevel: 2},
		{Name: "Low", Label: "low battery (can be used normally)", ExpectedLevel: 3},
		{Name: "Medium", Label: "medium", ExpectedLevel: 4},
		{Name: "High", Label: "high", ExpectedLevel: 5},
		{Name: "VeryHigh", Label: "very high", ExpectedLevel: 6},
		{Name: "MixedCaseWithSpaces", Label: "  Very Low Battery ", ExpectedLevel: 2},
		{Name: "Unknown", Label: "foobar", ExpectedLevel: 0},
		{Name: "Empty", Label: "", ExpectedLevel: 0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(test *testing.T) {
			level := BatteryLevel(testCase.Label)
			if level != testCase.ExpectedLevel {
				test.Errorf("Wrong level! Expected: %d Actual: %d", testCase.ExpectedLevel, level)
			}
		})
	}
}

func TestSignalLevel(t *testing.T) {
	testCases := []struct {
		Name          string
		Label         string
		ExpectedLevel int
	}{
		{Name: "NoSignal", Label: "no signal", ExpectedLevel: 0},
		{Name: "ExtremelyWeak", Label: "extremely weak signal", ExpectedLevel: 1},
		{Name: "VeryWeak", Label: "very weak signal", ExpectedLevel: 2},
		{Name: "Good", Label: "good signal", ExpectedLevel: 3},
		{Name: "Strong", Label: "strong signal", ExpectedLevel: 4},
		{Name: "Unknown", Label: "whatever", ExpectedLevel: 0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(test *testing.T) {
			level := SignalLevel(testCase.Label)
			if level != testCase.ExpectedLevel {
				test.Errorf("Wrong level! Expected: %d Actual: %d", testCase.ExpectedLevel, level)
			}
		})
	}
}

func TestLabelRoundTrip(t *testing.T) {
	// every reported voltage byte must map onto a distinct persisted level
	seen := make(map[int]bool)
	for b := byte(0); b < byte(len(voltageLabels)); b++ {
		level := BatteryLevel(VoltageLabel(b))
		if seen[level] {
			t.Errorf("Voltage byte %d maps to duplicate level %d", b, level)
		}
		seen[level] = true
	}

	if VoltageLabel(0xFF) != "" {
		t.Errorf("Out of range voltage byte must map to empty label")
	}
	if SignalLabel(0xFF) != "" {
		t.Errorf("Out of range signal byte must map to empty label")
	}
}
