package bluetooth

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/godbus/dbus/v5"
)

// ServiceIdentity is the per-process identity registered with BlueZ. Two
// instances on the same bus must not share object paths or the service UUID,
// so both carry the pid and a random 16-bit suffix. Collisions inside the
// suffix space are unlikely and handled reactively by the profile registrar.
type ServiceIdentity struct {
	Pid         int
	Suffix      uint16
	ServiceUUID string
	AgentPath   dbus.ObjectPath
	ProfilePath dbus.ObjectPath
}

// NewServiceIdentity draws a fresh identity for this process. Pure beyond the
// random draw; never fails.
func NewServiceIdentity() *ServiceIdentity {
	return newServiceIdentity(os.Getpid(), uint16(rand.Intn(0x10000)))
}

func newServiceIdentity(pid int, suffix uint16) *ServiceIdentity {
	return &ServiceIdentity{
		Pid:         pid,
		Suffix:      suffix,
		ServiceUUID: fmt.Sprintf("%s%04x", HID_UUID_PREFIX, suffix),
		AgentPath:   dbus.ObjectPath(fmt.Sprintf("/org/bluez/mouse/agent/%d_%04x", pid, suffix)),
		ProfilePath: dbus.ObjectPath(fmt.Sprintf("/org/bluez/mouse/hid/%d_%04x", pid, suffix)),
	}
}

// Instance is the pid_suffix tag used in object paths and log lines.
func (id *ServiceIdentity) Instance() string {
	return fmt.Sprintf("%d_%04x", id.Pid, id.Suffix)
}
