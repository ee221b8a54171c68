package bluetooth

import (
	"log"
	"time"

	"github.com/godbus/dbus/v5"
)

// connectSystemBus is a hook for tests to override D-Bus connection behavior.
var connectSystemBus = func() (*dbus.Conn, error) {
	return dbus.ConnectSystemBus()
}

// Session owns the system-bus connection and the BlueZ root object proxy for
// the lifetime of the process.
type Session struct {
	conn  *dbus.Conn
	bluez dbus.BusObject

	Attempts int
	Backoff  time.Duration
}

func NewSession() *Session {
	return &Session{
		Attempts: BUS_CONNECT_ATTEMPTS,
		Backoff:  BUS_CONNECT_BACKOFF,
	}
}

// Connect establishes the system-bus connection, retrying a fixed number of
// times. A ServiceUnknown fault means bluetoothd is not on the bus yet, so
// the prober's restart path runs before the next attempt; any other fault
// just waits out the backoff. Exhaustion is terminal: the caller must exit.
func (s *Session) Connect(prober *AdapterProber) (*dbus.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		conn, err := connectSystemBus()
		if err == nil {
			s.conn = conn
			s.bluez = conn.Object(BLUEZ_BUS_NAME, BLUEZ_OBJECT_PATH)
			log.Printf("BUS: connected to system bus (attempt %d/%d)", attempt, s.Attempts)
			return conn, nil
		}
		lastErr = err
		log.Printf("BUS: connect attempt %d/%d failed: %v", attempt, s.Attempts, err)

		if attempt == s.Attempts {
			break
		}
		if dbusErrorNamed(err, ERROR_SERVICE_UNKNOWN) {
			if rerr := prober.RestartService(); rerr != nil {
				log.Printf("BUS: service restart failed: %v", rerr)
			}
		} else {
			time.Sleep(s.Backoff)
		}
	}
	return nil, &ConnectionError{Attempts: s.Attempts, Err: lastErr}
}

// Bluez returns the org.bluez root object proxy.
func (s *Session) Bluez() dbus.BusObject {
	return s.bluez
}

// Conn returns the underlying bus connection.
func (s *Session) Conn() *dbus.Conn {
	return s.conn
}

// Close tears the bus connection down. Safe to call twice.
func (s *Session) Close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.bluez = nil
	}
}
