package domain

// Identity is the opaque participant key. Possession of the string is the only proof of ownership.
type Identity string

type DeviceStatus string

const (
	DeviceIdle      DeviceStatus = "idle"
	DeviceActive    DeviceStatus = "active"
	DeviceStopped   DeviceStatus = "stopped"
	DeviceRebooting DeviceStatus = "rebooting"
)

// DeviceIntent is one of the three abstract commands the robot understands.
type DeviceIntent string

const (
	IntentStart  DeviceIntent = "start"
	IntentStop   DeviceIntent = "stop"
	IntentReboot DeviceIntent = "reboot"
)

// Status returns the device status an intent moves the robot into.
func (i DeviceIntent) Status() DeviceStatus {
	switch i {
	case IntentStart:
		return DeviceActive
	case IntentStop:
		return DeviceStopped
	case IntentReboot:
		return DeviceRebooting
	default:
		return DeviceIdle
	}
}

func (i DeviceIntent) Valid() bool {
	return i == IntentStart || i == IntentStop || i == IntentReboot
}
