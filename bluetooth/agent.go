package bluetooth

import (
	"log"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/pkg/errors"
)

var agentIntrospectData = introspect.Node{
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name: BLUEZ_AGENT_INTERFACE,
			Methods: []introspect.Method{
				{Name: "Release"},
				{Name: "RequestPinCode", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "pincode", Type: "s", Direction: "out"},
				}},
				{Name: "DisplayPinCode", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "pincode", Type: "s", Direction: "in"},
				}},
				{Name: "RequestPasskey", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "out"},
				}},
				{Name: "DisplayPasskey", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "in"},
					{Name: "entered", Type: "q", Direction: "in"},
				}},
				{Name: "RequestConfirmation", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "passkey", Type: "u", Direction: "in"},
				}},
				{Name: "RequestAuthorization", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
				}},
				{Name: "AuthorizeService", Args: []introspect.Arg{
					{Name: "device", Type: "o", Direction: "in"},
					{Name: "uuid", Type: "s", Direction: "in"},
				}},
				{Name: "Cancel"},
			},
		},
	},
}

// PairingAgent services BlueZ pairing callbacks with NoInputNoOutput
// semantics: no PIN prompt, no display, everything accepted for our own
// service UUID.
type PairingAgent struct {
	introspect.Introspectable
	serviceUUID string
}

func newPairingAgent(serviceUUID string) *PairingAgent {
	return &PairingAgent{
		Introspectable: introspect.NewIntrospectable(&agentIntrospectData),
		serviceUUID:    serviceUUID,
	}
}

func (a *PairingAgent) Release() *dbus.Error {
	log.Println("AGENT: Release")
	return nil
}

func (a *PairingAgent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	log.Printf("AGENT: RequestPinCode from %s", device)
	return "0000", nil
}

func (a *PairingAgent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	log.Printf("AGENT: DisplayPinCode %s for %s", pincode, device)
	return nil
}

func (a *PairingAgent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	log.Printf("AGENT: RequestPasskey from %s", device)
	return 0, nil
}

func (a *PairingAgent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	log.Printf("AGENT: DisplayPasskey %06d for %s (entered %d)", passkey, device, entered)
	return nil
}

func (a *PairingAgent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	log.Printf("AGENT: RequestConfirmation %06d from %s, accepting", passkey, device)
	return nil
}

func (a *PairingAgent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	log.Printf("AGENT: RequestAuthorization from %s, accepting", device)
	return nil
}

func (a *PairingAgent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	log.Printf("AGENT: AuthorizeService %s from %s", uuid, device)
	if uuid == a.serviceUUID || uuid == PROFILE_HID_UUID {
		return nil
	}
	return &dbus.Error{Name: "org.bluez.Error.Rejected"}
}

func (a *PairingAgent) Cancel() *dbus.Error {
	log.Println("AGENT: Cancel")
	return nil
}

// AgentRegistrar owns the pairing agent's registration lifecycle.
type AgentRegistrar struct {
	identity *ServiceIdentity
	bluez    busObject
	handle   *RegistrationHandle

	Attempts int
	Backoff  time.Duration
}

func NewAgentRegistrar(identity *ServiceIdentity, bluez busObject) *AgentRegistrar {
	return &AgentRegistrar{
		identity: identity,
		bluez:    bluez,
		handle:   newRegistrationHandle(identity.AgentPath),
		Attempts: REGISTER_ATTEMPTS,
		Backoff:  REGISTER_BACKOFF,
	}
}

func (r *AgentRegistrar) Handle() *RegistrationHandle {
	return r.handle
}

// Export publishes the Agent1 implementation on the connection so BlueZ can
// call back into it during pairing.
func (r *AgentRegistrar) Export(conn *dbus.Conn) error {
	agent := newPairingAgent(r.identity.ServiceUUID)
	if err := conn.Export(agent, r.identity.AgentPath, BLUEZ_AGENT_INTERFACE); err != nil {
		return errors.Wrap(err, "export pairing agent")
	}
	if err := conn.Export(agent, r.identity.AgentPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return errors.Wrap(err, "export agent introspection")
	}
	return nil
}

// Register calls RegisterAgent and RequestDefaultAgent with bounded retries.
// Failure after all attempts leaves the handle unregistered; the caller
// degrades rather than aborting, pairing just needs manual confirmation then.
func (r *AgentRegistrar) Register() error {
	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		call := r.bluez.Call(BLUEZ_AGENT_MANAGER+".RegisterAgent", 0, r.identity.AgentPath, AGENT_CAPABILITY)
		if call.Err == nil {
			if err := r.bluez.Call(BLUEZ_AGENT_MANAGER+".RequestDefaultAgent", 0, r.identity.AgentPath).Err; err != nil {
				log.Printf("AGENT: RequestDefaultAgent failed: %v", err)
			}
			r.handle.setRegistered(true)
			log.Printf("AGENT: registered at %s (attempt %d/%d)", r.identity.AgentPath, attempt, r.Attempts)
			return nil
		}
		lastErr = call.Err
		log.Printf("AGENT: register attempt %d/%d failed: %v", attempt, r.Attempts, call.Err)
		if attempt < r.Attempts {
			time.Sleep(r.Backoff)
		}
	}
	return &RegistrationError{Entity: "agent", Attempts: r.Attempts, Err: lastErr}
}

// Unregister is best-effort teardown: any fault is logged and swallowed,
// and a handle that is already unregistered is left alone.
func (r *AgentRegistrar) Unregister() {
	if !r.handle.beginUnregister() {
		return
	}
	if err := r.bluez.Call(BLUEZ_AGENT_MANAGER+".UnregisterAgent", 0, r.identity.AgentPath).Err; err != nil {
		log.Printf("AGENT: unregister failed (ignored): %v", err)
		return
	}
	log.Printf("AGENT: unregistered %s", r.identity.AgentPath)
}
