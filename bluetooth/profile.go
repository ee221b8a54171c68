package bluetooth

import (
	"log"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/pkg/errors"
)

var profileIntrospectData = introspect.Node{
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name: BLUEZ_PROFILE_INTERFACE,
			Methods: []introspect.Method{
				{Name: "Release"},
				{Name: "NewConnection", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "fd", Type: "h", Direction: "in"},
					{Name: "fd_properties", Type: "a{sv}", Direction: "in"},
				}},
				{Name: "RequestDisconnection", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
				}},
			},
		},
	},
}

// hidProfile is the org.bluez.Profile1 object BlueZ calls when a host opens
// the registered HID service. Connection fds are forwarded to the transport.
type hidProfile struct {
	introspect.Introspectable
	transport *Transport
}

func newHidProfile(transport *Transport) *hidProfile {
	return &hidProfile{
		Introspectable: introspect.NewIntrospectable(&profileIntrospectData),
		transport:      transport,
	}
}

func (p *hidProfile) Release() *dbus.Error {
	log.Println("PROFILE: Release")
	return nil
}

func (p *hidProfile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, properties map[string]dbus.Variant) *dbus.Error {
	log.Printf("PROFILE: NewConnection from %s (fd %d)", device, fd)
	if p.transport == nil {
		return &dbus.Error{Name: "org.bluez.Error.Rejected"}
	}
	if err := p.transport.AdoptControl(int(fd), string(device)); err != nil {
		log.Printf("PROFILE: rejecting connection: %v", err)
		return &dbus.Error{Name: "org.bluez.Error.Rejected"}
	}
	return nil
}

func (p *hidProfile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	log.Printf("PROFILE: RequestDisconnection from %s", device)
	if p.transport != nil {
		p.transport.DropPeer()
	}
	return nil
}

// ProfileRegistrar owns the HID profile's registration lifecycle, including
// in-place recovery from a path collision left behind by a dead instance.
type ProfileRegistrar struct {
	identity *ServiceIdentity
	bluez    busObject
	handle   *RegistrationHandle

	Attempts int
	Backoff  time.Duration
}

func NewProfileRegistrar(identity *ServiceIdentity, bluez busObject) *ProfileRegistrar {
	return &ProfileRegistrar{
		identity: identity,
		bluez:    bluez,
		handle:   newRegistrationHandle(identity.ProfilePath),
		Attempts: REGISTER_ATTEMPTS,
		Backoff:  REGISTER_BACKOFF,
	}
}

func (r *ProfileRegistrar) Handle() *RegistrationHandle {
	return r.handle
}

// Export publishes the Profile1 implementation on the connection.
func (r *ProfileRegistrar) Export(conn *dbus.Conn, transport *Transport) error {
	profile := newHidProfile(transport)
	if err := conn.Export(profile, r.identity.ProfilePath, BLUEZ_PROFILE_INTERFACE); err != nil {
		return errors.Wrap(err, "export HID profile")
	}
	if err := conn.Export(profile, r.identity.ProfilePath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return errors.Wrap(err, "export profile introspection")
	}
	return nil
}

func (r *ProfileRegistrar) registerOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(SERVICE_NAME),
		"Role":                  dbus.MakeVariant("server"),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(true),
		"ServiceRecord":         dbus.MakeVariant(BuildSdpRecord(r.identity)),
	}
}

// Register calls RegisterProfile with a freshly built SDP record per
// attempt. An AlreadyExists fault means a previous instance left our path
// registered: the colliding registration is removed first (error ignored)
// and the attempt retried. The service cannot run without the profile, so
// exhausting retries is fatal to startup.
func (r *ProfileRegistrar) Register() error {
	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		call := r.bluez.Call(BLUEZ_PROFILE_MANAGER+".RegisterProfile", 0,
			r.identity.ProfilePath, r.identity.ServiceUUID, r.registerOptions())
		if call.Err == nil {
			r.handle.setRegistered(true)
			log.Printf("PROFILE: registered %s as %s (attempt %d/%d)",
				r.identity.ServiceUUID, r.identity.ProfilePath, attempt, r.Attempts)
			return nil
		}
		lastErr = call.Err
		log.Printf("PROFILE: register attempt %d/%d failed: %v", attempt, r.Attempts, call.Err)

		if dbusErrorNamed(call.Err, ERROR_ALREADY_EXISTS) {
			log.Printf("PROFILE: path %s already registered, forcing unregister", r.identity.ProfilePath)
			if err := r.bluez.Call(BLUEZ_PROFILE_MANAGER+".UnregisterProfile", 0, r.identity.ProfilePath).Err; err != nil {
				log.Printf("PROFILE: forced unregister failed (ignored): %v", err)
			}
		}
		if attempt < r.Attempts {
			time.Sleep(r.Backoff)
		}
	}
	return &RegistrationError{Entity: "profile", Attempts: r.Attempts, Err: lastErr}
}

// Unregister is best-effort teardown, safe to call any number of times.
func (r *ProfileRegistrar) Unregister() {
	if !r.handle.beginUnregister() {
		return
	}
	if err := r.bluez.Call(BLUEZ_PROFILE_MANAGER+".UnregisterProfile", 0, r.identity.ProfilePath).Err; err != nil {
		log.Printf("PROFILE: unregister failed (ignored): %v", err)
		return
	}
	log.Printf("PROFILE: unregistered %s", r.identity.ProfilePath)
}
