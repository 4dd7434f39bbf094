package threshold

// batteryLowPercent is the charge at or below which the battery is shown as low.
const batteryLowPercent = 15

// SignalBars maps an RSSI in dBm to 0..4 bars.
func SignalBars(rssi float64) int {
	switch {
	case rssi >= -60:
		return 4
	case rssi >= -70:
		return 3
	case rssi >= -80:
		return 2
	case rssi >= -90:
		return 1
	default:
		return 0
	}
}

// BatteryLow reports whether the charge percentage should be highlighted.
func BatteryLow(percent float64) bool {
	return percent <= batteryLowPercent
}
