package bluetooth

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// busObject is the slice of dbus.BusObject the registrars need. Tests
// substitute a fake; production code passes Session.Bluez().
type busObject interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// RegistrationHandle tracks whether an entity (agent or profile) is
// currently registered with BlueZ. Unregistration is only ever attempted
// against a registered handle, which is what makes cleanup idempotent.
type RegistrationHandle struct {
	mu         sync.Mutex
	path       dbus.ObjectPath
	registered bool
}

func newRegistrationHandle(path dbus.ObjectPath) *RegistrationHandle {
	return &RegistrationHandle{path: path}
}

func (h *RegistrationHandle) Path() dbus.ObjectPath {
	return h.path
}

func (h *RegistrationHandle) Registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

func (h *RegistrationHandle) setRegistered(v bool) {
	h.mu.Lock()
	h.registered = v
	h.mu.Unlock()
}

// beginUnregister flips a registered handle to unregistered and reports
// whether the caller should actually issue the unregister call. A second
// teardown pass gets false and does nothing.
func (h *RegistrationHandle) beginUnregister() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered {
		return false
	}
	h.registered = false
	return true
}
