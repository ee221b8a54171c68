package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

const showReadyOutput = `Controller 00:1A:7D:DA:71:13 (public)
	Name: raspberrypi
	Powered: yes
	Discoverable: yes
	Pairable: yes
	UUID: Human Interface Device`

const showColdOutput = `Controller 00:1A:7D:DA:71:13 (public)
	Name: raspberrypi
	Powered: no
	Discoverable: no
	Pairable: no`

func TestParseAdapterShow(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want AdapterState
	}{
		{"ready", showReadyOutput, AdapterState{ControllerPresent: true, Powered: true, Discoverable: true, Pairable: true}},
		{"cold", showColdOutput, AdapterState{ControllerPresent: true}},
		{"no controller", "No default controller available", AdapterState{}},
		{"empty output", "", AdapterState{}},
	}

	for _, tt := range tests {
		got := parseAdapterShow(tt.out)
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

// fakeCommands replaces the command hook and records every invocation.
type fakeCommands struct {
	calls   []string
	outputs map[string]string
	fail    map[string]error
}

func (f *fakeCommands) install(t *testing.T) {
	t.Helper()
	orig := runCommand
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		key := name + " " + strings.Join(args, " ")
		f.calls = append(f.calls, key)
		if err, ok := f.fail[key]; ok {
			return nil, err
		}
		return []byte(f.outputs[key]), nil
	}
	t.Cleanup(func() { runCommand = orig })
}

func (f *fakeCommands) count(key string) int {
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func newTestProber() *AdapterProber {
	p := NewAdapterProber()
	p.Timeout = time.Second
	p.RestartSettle = 0
	p.Settle = 0
	return p
}

func TestEnsureReadyNoActionWhenReady(t *testing.T) {
	fake := &fakeCommands{outputs: map[string]string{"bluetoothctl show": showReadyOutput}}
	fake.install(t)

	if err := newTestProber().EnsureReady(); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	for _, forbidden := range []string{
		"bluetoothctl power on",
		"bluetoothctl discoverable on",
		"bluetoothctl pairable on",
		"systemctl restart bluetooth",
	} {
		if fake.count(forbidden) != 0 {
			t.Errorf("ready adapter must not trigger %q", forbidden)
		}
	}
	// The agent flag is always refreshed.
	if fake.count("bluetoothctl agent on") != 1 {
		t.Error("expected exactly one agent on call")
	}
}

func TestEnsureReadyRepairsColdAdapter(t *testing.T) {
	fake := &fakeCommands{outputs: map[string]string{"bluetoothctl show": showColdOutput}}
	fake.install(t)

	if err := newTestProber().EnsureReady(); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	for _, expected := range []string{
		"bluetoothctl power on",
		"bluetoothctl discoverable on",
		"bluetoothctl pairable on",
		"bluetoothctl agent on",
	} {
		if fake.count(expected) != 1 {
			t.Errorf("expected exactly one %q call, got %d", expected, fake.count(expected))
		}
	}
}

func TestEnsureReadyRestartsWithoutController(t *testing.T) {
	fake := &fakeCommands{outputs: map[string]string{
		"bluetoothctl show":           "No default controller available",
		"systemctl restart bluetooth": "",
	}}
	fake.install(t)

	err := newTestProber().EnsureReady()
	if err == nil {
		t.Fatal("expected an error when no controller ever appears")
	}
	if _, ok := err.(*AdapterError); !ok {
		t.Errorf("expected *AdapterError, got %T", err)
	}
	if fake.count("systemctl restart bluetooth") != 1 {
		t.Errorf("expected one service restart, got %d", fake.count("systemctl restart bluetooth"))
	}
}

func TestEnsureReadyToggleFailuresAreNotFatal(t *testing.T) {
	fake := &fakeCommands{
		outputs: map[string]string{"bluetoothctl show": showColdOutput},
		fail: map[string]error{
			"bluetoothctl power on":        fmt.Errorf("timed out"),
			"bluetoothctl discoverable on": fmt.Errorf("timed out"),
			"bluetoothctl pairable on":     fmt.Errorf("timed out"),
			"bluetoothctl agent on":        fmt.Errorf("timed out"),
		},
	}
	fake.install(t)

	if err := newTestProber().EnsureReady(); err != nil {
		t.Fatalf("toggle timeouts must not fail EnsureReady: %v", err)
	}
}
