package bluetooth

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/scipioni/mouse-controller/input"
	"github.com/scipioni/mouse-controller/utils"
)

// Manager orchestrates the whole peripheral lifecycle: adapter readiness,
// bus session, agent and profile registration, the sampling loop, and the
// guaranteed teardown in reverse registration order.
type Manager struct {
	mu sync.RWMutex

	identity  *ServiceIdentity
	prober    *AdapterProber
	session   *Session
	agent     *AgentRegistrar
	profile   *ProfileRegistrar
	transport *Transport
	source    input.Source
	wsHub     *utils.WebSocketHub

	isRunning     bool
	stopChan      chan struct{}
	reportsSent   uint64
	agentDegraded bool
}

func NewManager(source input.Source, wsHub *utils.WebSocketHub) *Manager {
	identity := NewServiceIdentity()
	log.Printf("HID_MGR: instance %s, service UUID %s", identity.Instance(), identity.ServiceUUID)

	return &Manager{
		identity:  identity,
		prober:    NewAdapterProber(),
		session:   NewSession(),
		transport: NewTransport(),
		source:    source,
		wsHub:     wsHub,
		stopChan:  make(chan struct{}),
	}
}

// Identity returns the per-process service identity.
func (m *Manager) Identity() *ServiceIdentity {
	return m.identity
}

// Prober exposes the adapter prober for the status surface.
func (m *Manager) Prober() *AdapterProber {
	return m.prober
}

// Run drives startup in order, then blocks in the sampling loop until the
// context is cancelled or Stop is called. Teardown always runs, including
// on every failed startup stage past the bus connection.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.isRunning = false
		m.mu.Unlock()
	}()

	log.Println("HID_MGR: probing adapter readiness")
	if err := m.prober.EnsureReady(); err != nil {
		return err
	}
	m.broadcastAdapterState()

	log.Println("HID_MGR: connecting to system bus")
	conn, err := m.session.Connect(m.prober)
	if err != nil {
		return err
	}
	defer m.Cleanup()

	m.agent = NewAgentRegistrar(m.identity, m.session.Bluez())
	m.profile = NewProfileRegistrar(m.identity, m.session.Bluez())

	m.transport.SetCallbacks(
		func(peer string) {
			m.broadcast(utils.EventHidConnected, map[string]interface{}{"peer": peer})
		},
		func(peer string) {
			m.broadcast(utils.EventHidDisconnected, map[string]interface{}{"peer": peer})
		},
	)

	if err := m.agent.Export(conn); err != nil {
		log.Printf("HID_MGR: agent export failed: %v", err)
	}
	if err := m.agent.Register(); err != nil {
		// Degraded: hosts can still pair through an external agent.
		log.Printf("HID_MGR: continuing without pairing agent: %v", err)
		m.mu.Lock()
		m.agentDegraded = true
		m.mu.Unlock()
	} else {
		m.broadcast(utils.EventAgentRegistered, map[string]interface{}{"path": string(m.identity.AgentPath)})
	}

	if err := m.profile.Export(conn, m.transport); err != nil {
		return err
	}
	if err := m.profile.Register(); err != nil {
		// No profile, no service. Cleanup still runs via the deferred call.
		return err
	}
	m.broadcast(utils.EventProfileRegistered, map[string]interface{}{
		"path": string(m.identity.ProfilePath),
		"uuid": m.identity.ServiceUUID,
	})

	if err := m.transport.Start(); err != nil {
		return err
	}

	if err := m.source.Start(); err != nil {
		return err
	}

	log.Println("HID_MGR: entering sampling loop")
	m.sampleLoop(ctx)
	return nil
}

// sampleLoop ticks at the fixed sampling interval, encoding the delta
// between consecutive pointer samples into one report per tick. Faults
// inside the loop are logged, never fatal; only cancellation exits.
func (m *Manager) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(SAMPLE_INTERVAL)
	defer ticker.Stop()

	prev := m.source.Sample()
	for {
		select {
		case <-ctx.Done():
			log.Println("HID_MGR: shutdown requested, leaving sampling loop")
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			cur := m.source.Sample()
			report := EncodeReport(prev.Position, cur.Position, cur.Buttons)
			prev = cur
			if report.Zero() {
				continue
			}

			if m.transport.Connected() {
				if err := m.transport.SendReport(report); err == nil {
					m.mu.Lock()
					m.reportsSent++
					m.mu.Unlock()
				}
			} else {
				log.Printf("HID_MGR: report buttons=%#02x dx=%d dy=%d (no peer)",
					report[0], report.DX(), report.DY())
			}
			m.broadcast(utils.EventHidReport, map[string]interface{}{
				"buttons": report[0],
				"dx":      report.DX(),
				"dy":      report.DY(),
			})
		}
	}
}

// Stop asks the sampling loop to exit. Safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return
	}
	m.isRunning = false
	close(m.stopChan)
}

// Cleanup tears down in reverse registration order: profile, agent,
// transport, bus. Idempotent through the registration handles, so the
// signal path and the normal exit path can both call it.
func (m *Manager) Cleanup() {
	log.Println("HID_MGR: cleaning up")
	if m.profile != nil {
		m.profile.Unregister()
	}
	if m.agent != nil {
		m.agent.Unregister()
	}
	m.transport.Close()
	m.source.Stop()
	m.session.Close()
}

// Status is the state snapshot served by /api/status.
func (m *Manager) Status() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := map[string]interface{}{
		"instance":     m.identity.Instance(),
		"service_uuid": m.identity.ServiceUUID,
		"agent_path":   string(m.identity.AgentPath),
		"profile_path": string(m.identity.ProfilePath),
		"is_running":   m.isRunning,
		"reports_sent": m.reportsSent,
		"peer":         m.transport.Peer(),
		"connected":    m.transport.Connected(),
	}
	if m.agent != nil {
		status["agent_registered"] = m.agent.Handle().Registered()
		status["agent_degraded"] = m.agentDegraded
	}
	if m.profile != nil {
		status["profile_registered"] = m.profile.Handle().Registered()
	}
	return status
}

func (m *Manager) broadcast(eventType string, payload interface{}) {
	if m.wsHub == nil {
		return
	}
	m.wsHub.Broadcast(utils.WebSocketEvent{Type: eventType, Payload: payload})
}

func (m *Manager) broadcastAdapterState() {
	state, err := m.prober.Probe()
	if err != nil {
		return
	}
	m.broadcast(utils.EventAdapterState, state)
}
