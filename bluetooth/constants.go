package bluetooth

import "time"

const (
	BLUEZ_BUS_NAME          = "org.bluez"
	BLUEZ_OBJECT_PATH       = "/org/bluez"
	BLUEZ_ADAPTER_INTERFACE = "org.bluez.Adapter1"
	BLUEZ_DEVICE_INTERFACE  = "org.bluez.Device1"
	BLUEZ_AGENT_INTERFACE   = "org.bluez.Agent1"
	BLUEZ_PROFILE_INTERFACE = "org.bluez.Profile1"
	BLUEZ_AGENT_MANAGER     = "org.bluez.AgentManager1"
	BLUEZ_PROFILE_MANAGER   = "org.bluez.ProfileManager1"
)

// BlueZ error names the registrars and session recover from explicitly.
const (
	ERROR_ALREADY_EXISTS  = "org.bluez.Error.AlreadyExists"
	ERROR_DOES_NOT_EXIST  = "org.bluez.Error.DoesNotExist"
	ERROR_SERVICE_UNKNOWN = "org.freedesktop.DBus.Error.ServiceUnknown"
)

const (
	// HID device profile (16-bit UUID 0x1124). The last 16 bits of the
	// base suffix are replaced per instance, see identity.go.
	PROFILE_HID_UUID = "00001124-0000-1000-8000-00805f9b34fb"
	HID_UUID_PREFIX  = "00001124-0000-1000-8000-00805f9b"

	AGENT_CAPABILITY = "NoInputNoOutput"

	SERVICE_NAME        = "HID Mouse"
	SERVICE_DESCRIPTION = "Bluetooth HID mouse peripheral"
)

// HIDP protocol constants for the L2CAP control/interrupt channels.
const (
	AF_BLUETOOTH   = 31
	BTPROTO_L2CAP  = 0
	SOCK_SEQPACKET = 5

	PSM_HID_CONTROL   = 0x0011
	PSM_HID_INTERRUPT = 0x0013

	HIDP_TRANS_MASK = 0xf0

	HIDP_TRANS_HANDSHAKE    = 0x00
	HIDP_TRANS_CONTROL      = 0x10
	HIDP_TRANS_GET_PROTOCOL = 0x50
	HIDP_TRANS_SET_PROTOCOL = 0x60
	HIDP_TRANS_DATA         = 0xa0

	HIDP_HSHK_SUCCESSFUL  = 0x00
	HIDP_HSHK_ERR_UNKNOWN = 0x0e

	// DATA transaction, report type Input. Prefixed to every outgoing report.
	HIDP_DATA_INPUT = 0xa1
)

// Retry/backoff policy for the one-time setup phase. The sampling loop
// itself never retries.
const (
	BUS_CONNECT_ATTEMPTS = 3
	BUS_CONNECT_BACKOFF  = 2 * time.Second

	REGISTER_ATTEMPTS = 3
	REGISTER_BACKOFF  = 1 * time.Second

	BLUETOOTHCTL_TIMEOUT   = 5 * time.Second
	SERVICE_RESTART_SETTLE = 3 * time.Second
	ADAPTER_SETTLE         = 1 * time.Second

	SAMPLE_INTERVAL = 10 * time.Millisecond

	REPORT_WRITE_TIMEOUT = 100 * time.Millisecond
)

// MouseReportDescriptor is the fixed HID report descriptor advertised in the
// SDP record: Generic Desktop / Mouse, 3 buttons (1 bit each plus 5 bits of
// padding), then relative X and Y as signed 8-bit fields. Hosts parse the
// 3-byte input reports against exactly these bytes, so they must never drift
// from the encoder in report.go.
var MouseReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x02, // Usage (Mouse)
	0xa1, 0x01, // Collection (Application)
	0x09, 0x01, //   Usage (Pointer)
	0xa1, 0x00, //   Collection (Physical)
	0x05, 0x09, //     Usage Page (Button)
	0x19, 0x01, //     Usage Minimum (Button 1)
	0x29, 0x03, //     Usage Maximum (Button 3)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x01, //     Logical Maximum (1)
	0x95, 0x03, //     Report Count (3)
	0x75, 0x01, //     Report Size (1)
	0x81, 0x02, //     Input (Data, Variable, Absolute)
	0x95, 0x01, //     Report Count (1)
	0x75, 0x05, //     Report Size (5)
	0x81, 0x01, //     Input (Constant)
	0x05, 0x01, //     Usage Page (Generic Desktop)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7f, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x02, //     Report Count (2)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0xc0, //   End Collection
	0xc0, // End Collection
}
