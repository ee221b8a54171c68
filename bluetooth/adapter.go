package bluetooth

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AdapterState is the live state of the local controller as reported by
// bluetoothctl. It is never cached: the adapter is external ground truth and
// every readiness check re-reads it.
type AdapterState struct {
	ControllerPresent bool `json:"controller_present"`
	Powered           bool `json:"powered"`
	Discoverable      bool `json:"discoverable"`
	Pairable          bool `json:"pairable"`
}

// runCommand is a hook for tests to fake bluetoothctl/systemctl output.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AdapterProber drives the adapter into a pairable state through the
// bluetoothctl control surface. All invocations are bounded by a timeout;
// a timeout is logged and treated as "no effect", never fatal.
type AdapterProber struct {
	Timeout       time.Duration
	RestartSettle time.Duration
	Settle        time.Duration
}

func NewAdapterProber() *AdapterProber {
	return &AdapterProber{
		Timeout:       BLUETOOTHCTL_TIMEOUT,
		RestartSettle: SERVICE_RESTART_SETTLE,
		Settle:        ADAPTER_SETTLE,
	}
}

func (p *AdapterProber) bluetoothctl(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	out, err := runCommand(ctx, "bluetoothctl", args...)
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), &AdapterError{Op: strings.Join(args, " "), Err: ctx.Err()}
	}
	if err != nil {
		return string(out), &AdapterError{Op: strings.Join(args, " "), Err: err}
	}
	return string(out), nil
}

// Probe queries the current adapter state from `bluetoothctl show`. The
// output contract is textual: a missing "Controller" line means no adapter,
// and "Powered: no" style lines flag the individual toggles.
func (p *AdapterProber) Probe() (AdapterState, error) {
	out, err := p.bluetoothctl("show")
	if err != nil {
		return AdapterState{}, err
	}
	return parseAdapterShow(out), nil
}

func parseAdapterShow(out string) AdapterState {
	state := AdapterState{
		ControllerPresent: strings.Contains(out, "Controller"),
	}
	if !state.ControllerPresent {
		return state
	}
	state.Powered = !strings.Contains(out, "Powered: no")
	state.Discoverable = !strings.Contains(out, "Discoverable: no")
	state.Pairable = !strings.Contains(out, "Pairable: no")
	return state
}

// EnsureReady repairs the adapter step by step: restart the service when no
// controller shows up, then power, discoverable and pairable in that order,
// and always re-enable the pairing agent flag. Idempotent; every step
// re-reads live state instead of trusting internal flags.
func (p *AdapterProber) EnsureReady() error {
	state, err := p.Probe()
	if err != nil {
		log.Printf("ADAPTER: probe failed (%v), restarting bluetooth service", err)
		if err := p.RestartService(); err != nil {
			return err
		}
		if state, err = p.Probe(); err != nil {
			return errors.Wrap(err, "adapter still unreachable after service restart")
		}
	}

	if !state.ControllerPresent {
		log.Println("ADAPTER: no controller present, restarting bluetooth service")
		if err := p.RestartService(); err != nil {
			return err
		}
		if state, err = p.Probe(); err != nil {
			return err
		}
		if !state.ControllerPresent {
			return &AdapterError{Op: "show", Err: errors.New("no Bluetooth controller found")}
		}
	}

	if !state.Powered {
		log.Println("ADAPTER: powering on")
		if _, err := p.bluetoothctl("power", "on"); err != nil {
			log.Printf("ADAPTER: power on failed: %v", err)
		}
		time.Sleep(p.Settle)
	}

	if state, err = p.Probe(); err != nil {
		return err
	}
	if !state.Discoverable {
		log.Println("ADAPTER: enabling discoverable mode")
		if _, err := p.bluetoothctl("discoverable", "on"); err != nil {
			log.Printf("ADAPTER: discoverable on failed: %v", err)
		}
	}
	if !state.Pairable {
		log.Println("ADAPTER: enabling pairable mode")
		if _, err := p.bluetoothctl("pairable", "on"); err != nil {
			log.Printf("ADAPTER: pairable on failed: %v", err)
		}
	}

	// Always refresh the agent flag, pairing breaks silently without it.
	if _, err := p.bluetoothctl("agent", "on"); err != nil {
		log.Printf("ADAPTER: agent on failed: %v", err)
	}

	return nil
}

// RestartService bounces bluetoothd and waits a fixed settle interval so a
// cold adapter has time to come back on the bus.
func (p *AdapterProber) RestartService() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	if out, err := runCommand(ctx, "systemctl", "restart", "bluetooth"); err != nil {
		return &AdapterError{Op: "restart bluetooth.service", Err: errors.Wrap(err, strings.TrimSpace(string(out)))}
	}
	log.Printf("ADAPTER: bluetooth service restarted, settling for %s", p.RestartSettle)
	time.Sleep(p.RestartSettle)
	return nil
}
