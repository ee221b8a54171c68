package bluetooth

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// fakeBluez stands in for the org.bluez root object. Each queued response
// answers one call to its method, in order; an exhausted queue succeeds.
type fakeBluez struct {
	calls     []string
	responses map[string][]error
}

func newFakeBluez() *fakeBluez {
	return &fakeBluez{responses: make(map[string][]error)}
}

func (f *fakeBluez) queue(method string, errs ...error) {
	f.responses[method] = append(f.responses[method], errs...)
}

func (f *fakeBluez) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, method)
	queue := f.responses[method]
	if len(queue) == 0 {
		return &dbus.Call{}
	}
	err := queue[0]
	f.responses[method] = queue[1:]
	return &dbus.Call{Err: err}
}

func (f *fakeBluez) count(method string) int {
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func newTestAgentRegistrar(bluez busObject) *AgentRegistrar {
	r := NewAgentRegistrar(newServiceIdentity(1234, 0x2ab3), bluez)
	r.Backoff = time.Millisecond
	return r
}

func newTestProfileRegistrar(bluez busObject) *ProfileRegistrar {
	r := NewProfileRegistrar(newServiceIdentity(1234, 0x2ab3), bluez)
	r.Backoff = time.Millisecond
	return r
}

func TestAgentRegisterSuccess(t *testing.T) {
	bluez := newFakeBluez()
	r := newTestAgentRegistrar(bluez)

	if err := r.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.Handle().Registered() {
		t.Error("handle must be registered after success")
	}
	if bluez.count(BLUEZ_AGENT_MANAGER+".RegisterAgent") != 1 {
		t.Error("expected exactly one RegisterAgent call")
	}
	if bluez.count(BLUEZ_AGENT_MANAGER+".RequestDefaultAgent") != 1 {
		t.Error("expected exactly one RequestDefaultAgent call")
	}
}

func TestAgentRegisterRetryBound(t *testing.T) {
	bluez := newFakeBluez()
	bluez.queue(BLUEZ_AGENT_MANAGER+".RegisterAgent",
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
	)
	r := newTestAgentRegistrar(bluez)

	err := r.Register()
	if err == nil {
		t.Fatal("expected terminal error")
	}
	regErr, ok := err.(*RegistrationError)
	if !ok {
		t.Fatalf("expected *RegistrationError, got %T", err)
	}
	if regErr.Entity != "agent" {
		t.Errorf("expected agent entity, got %s", regErr.Entity)
	}
	if got := bluez.count(BLUEZ_AGENT_MANAGER + ".RegisterAgent"); got != REGISTER_ATTEMPTS {
		t.Errorf("expected exactly %d attempts, got %d", REGISTER_ATTEMPTS, got)
	}
	if r.Handle().Registered() {
		t.Error("handle must stay unregistered after exhausting retries")
	}
}

func TestProfileRegisterConflictRecovery(t *testing.T) {
	bluez := newFakeBluez()
	bluez.queue(BLUEZ_PROFILE_MANAGER+".RegisterProfile",
		dbus.Error{Name: ERROR_ALREADY_EXISTS},
	)
	r := newTestProfileRegistrar(bluez)

	if err := r.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.Handle().Registered() {
		t.Error("handle must be registered after conflict recovery")
	}
	// The colliding path was removed before the retry.
	if bluez.count(BLUEZ_PROFILE_MANAGER+".UnregisterProfile") != 1 {
		t.Error("expected one forced unregister of the colliding path")
	}
	if bluez.count(BLUEZ_PROFILE_MANAGER+".RegisterProfile") != 2 {
		t.Error("expected two register attempts around the conflict")
	}
}

func TestProfileRegisterConflictUnregisterErrorIgnored(t *testing.T) {
	bluez := newFakeBluez()
	bluez.queue(BLUEZ_PROFILE_MANAGER+".RegisterProfile",
		dbus.Error{Name: ERROR_ALREADY_EXISTS},
	)
	bluez.queue(BLUEZ_PROFILE_MANAGER+".UnregisterProfile",
		dbus.Error{Name: ERROR_DOES_NOT_EXIST},
	)
	r := newTestProfileRegistrar(bluez)

	if err := r.Register(); err != nil {
		t.Fatalf("a failed forced unregister must not abort registration: %v", err)
	}
	if !r.Handle().Registered() {
		t.Error("handle must be registered")
	}
}

func TestProfileRegisterRetryBound(t *testing.T) {
	bluez := newFakeBluez()
	bluez.queue(BLUEZ_PROFILE_MANAGER+".RegisterProfile",
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
		dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"},
	)
	r := newTestProfileRegistrar(bluez)

	err := r.Register()
	if err == nil {
		t.Fatal("expected terminal error")
	}
	regErr, ok := err.(*RegistrationError)
	if !ok {
		t.Fatalf("expected *RegistrationError, got %T", err)
	}
	if regErr.Entity != "profile" {
		t.Errorf("expected profile entity, got %s", regErr.Entity)
	}
	if got := bluez.count(BLUEZ_PROFILE_MANAGER + ".RegisterProfile"); got != REGISTER_ATTEMPTS {
		t.Errorf("expected exactly %d attempts, got %d", REGISTER_ATTEMPTS, got)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	bluez := newFakeBluez()
	r := newTestProfileRegistrar(bluez)
	if err := r.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Unregister()
	r.Unregister()

	if got := bluez.count(BLUEZ_PROFILE_MANAGER + ".UnregisterProfile"); got != 1 {
		t.Errorf("second teardown must be a no-op, got %d unregister calls", got)
	}
	if r.Handle().Registered() {
		t.Error("handle must be unregistered")
	}
}

func TestUnregisterWithoutRegistration(t *testing.T) {
	bluez := newFakeBluez()
	r := newTestAgentRegistrar(bluez)

	r.Unregister()

	if got := bluez.count(BLUEZ_AGENT_MANAGER + ".UnregisterAgent"); got != 0 {
		t.Errorf("unregister must never run against an unregistered handle, got %d calls", got)
	}
}

func TestUnregisterFailureSwallowed(t *testing.T) {
	bluez := newFakeBluez()
	r := newTestAgentRegistrar(bluez)
	if err := r.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	bluez.queue(BLUEZ_AGENT_MANAGER+".UnregisterAgent",
		dbus.Error{Name: ERROR_DOES_NOT_EXIST},
	)

	// Must not panic or re-arm the handle.
	r.Unregister()
	if r.Handle().Registered() {
		t.Error("handle must be unregistered even when the call fails")
	}
}
