package bluetooth

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// AdapterError: the bluetoothctl control surface was unreachable or timed
// out. Recoverable; callers re-probe after a service restart.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// ConnectionError: the system bus stayed unreachable after all connect
// attempts. Fatal; the process must not run without a bus connection.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("system bus unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RegistrationError: an agent or profile registration exhausted its retries.
// Fatal for the profile, degraded-but-running for the agent.
type RegistrationError struct {
	Entity   string // "agent" or "profile"
	Attempts int
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%s registration failed after %d attempts: %v", e.Entity, e.Attempts, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// dbusErrorNamed reports whether err is (or wraps) a D-Bus fault with the
// given name, e.g. org.bluez.Error.AlreadyExists.
func dbusErrorNamed(err error, name string) bool {
	var dberr dbus.Error
	if errors.As(err, &dberr) {
		return dberr.Name == name
	}
	var dbptr *dbus.Error
	if errors.As(err, &dbptr) {
		return dbptr.Name == name
	}
	return false
}
