package bluetooth

import (
	"log"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Transport owns the L2CAP control and interrupt channels that carry HID
// traffic to a paired host. It listens on the two well-known HID PSMs bound
// to BDADDR_ANY; when BlueZ hands the control channel over Profile1 instead,
// that fd is adopted in place of an accepted one. One peer at a time.
type Transport struct {
	mu sync.Mutex

	ctrlListener int
	intrListener int

	ctrlFd int
	intrFd int
	peer   string

	closed   bool
	stopChan chan struct{}

	onConnect    func(peer string)
	onDisconnect func(peer string)
}

func NewTransport() *Transport {
	return &Transport{
		ctrlListener: -1,
		intrListener: -1,
		ctrlFd:       -1,
		intrFd:       -1,
		stopChan:     make(chan struct{}),
	}
}

// SetCallbacks installs connection lifecycle notifications. Must be called
// before Start.
func (t *Transport) SetCallbacks(onConnect, onDisconnect func(peer string)) {
	t.onConnect = onConnect
	t.onDisconnect = onDisconnect
}

func listenL2cap(psm uint16) (int, error) {
	fd, err := unix.Socket(AF_BLUETOOTH, SOCK_SEQPACKET, BTPROTO_L2CAP)
	if err != nil {
		return -1, errors.Wrapf(err, "create L2CAP socket for PSM 0x%04x", psm)
	}
	addr := &unix.SockaddrL2{PSM: psm}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "bind L2CAP PSM 0x%04x", psm)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "listen L2CAP PSM 0x%04x", psm)
	}
	return fd, nil
}

// Start opens both listener sockets and begins accepting. Requires
// CAP_NET_BIND_SERVICE equivalents for the privileged PSMs and bluetoothd's
// own input plugin to be out of the way.
func (t *Transport) Start() error {
	ctrl, err := listenL2cap(PSM_HID_CONTROL)
	if err != nil {
		return err
	}
	intr, err := listenL2cap(PSM_HID_INTERRUPT)
	if err != nil {
		unix.Close(ctrl)
		return err
	}

	t.mu.Lock()
	t.ctrlListener = ctrl
	t.intrListener = intr
	t.mu.Unlock()

	go t.acceptLoop(ctrl, true)
	go t.acceptLoop(intr, false)

	log.Printf("HID_XPORT: listening on L2CAP PSM 0x%04x (control) and 0x%04x (interrupt)",
		PSM_HID_CONTROL, PSM_HID_INTERRUPT)
	return nil
}

func (t *Transport) acceptLoop(listener int, control bool) {
	for {
		nfd, sa, err := unix.Accept(listener)
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			if err == unix.EINTR {
				continue
			}
			log.Printf("HID_XPORT: accept failed: %v", err)
			return
		}

		peer := ""
		if l2, ok := sa.(*unix.SockaddrL2); ok {
			peer = formatBdaddr(l2.Addr)
		}

		if control {
			t.attachControl(nfd, peer)
		} else {
			t.attachInterrupt(nfd, peer)
		}
	}
}

func formatBdaddr(addr [6]uint8) string {
	// Kernel stores bdaddr little-endian.
	buf := make([]byte, 0, 17)
	for i := 5; i >= 0; i-- {
		buf = appendHexByte(buf, addr[i])
		if i > 0 {
			buf = append(buf, ':')
		}
	}
	return string(buf)
}

const hexDigits = "0123456789ABCDEF"

func appendHexByte(buf []byte, b byte) []byte {
	return append(buf, hexDigits[b>>4], hexDigits[b&0x0f])
}

// AdoptControl takes ownership of a control-channel fd delivered by BlueZ
// via Profile1.NewConnection. Rejected when a peer already holds the slot.
func (t *Transport) AdoptControl(fd int, peer string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.ctrlFd >= 0 {
		t.mu.Unlock()
		return errors.Errorf("control channel busy with %s", t.peer)
	}
	t.mu.Unlock()
	t.attachControl(fd, peer)
	return nil
}

func (t *Transport) attachControl(fd int, peer string) {
	t.mu.Lock()
	if t.ctrlFd >= 0 {
		t.mu.Unlock()
		log.Printf("HID_XPORT: rejecting second control connection from %s", peer)
		unix.Close(fd)
		return
	}
	t.ctrlFd = fd
	if peer != "" {
		t.peer = peer
	}
	t.mu.Unlock()

	log.Printf("HID_XPORT: control channel up (peer %s)", peer)
	go t.serveControl(fd)
}

func (t *Transport) attachInterrupt(fd int, peer string) {
	t.mu.Lock()
	if t.intrFd >= 0 {
		t.mu.Unlock()
		log.Printf("HID_XPORT: rejecting second interrupt connection from %s", peer)
		unix.Close(fd)
		return
	}
	// Bound send so a hung host cannot stall the sampling loop.
	tv := unix.NsecToTimeval(REPORT_WRITE_TIMEOUT.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		log.Printf("HID_XPORT: SO_SNDTIMEO failed: %v", err)
	}
	t.intrFd = fd
	if peer != "" {
		t.peer = peer
	}
	connectedPeer := t.peer
	t.mu.Unlock()

	log.Printf("HID_XPORT: interrupt channel up, reports flowing to %s", connectedPeer)
	if t.onConnect != nil {
		t.onConnect(connectedPeer)
	}
}

// serveControl answers HIDP transactions on the control channel the way
// hosts expect from a boot-capable device: SET_PROTOCOL succeeds, anything
// unrecognized gets ERR_UNKNOWN. EOF drops the peer.
func (t *Transport) serveControl(fd int) {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < 1 {
			log.Println("HID_XPORT: control channel closed")
			t.DropPeer()
			return
		}

		hsk := []byte{HIDP_TRANS_HANDSHAKE}
		switch buf[0] & HIDP_TRANS_MASK {
		case HIDP_TRANS_SET_PROTOCOL:
			hsk[0] |= HIDP_HSHK_SUCCESSFUL
			if _, err := unix.Write(fd, hsk); err != nil {
				log.Printf("HID_XPORT: handshake reply failed: %v", err)
			}
		case HIDP_TRANS_DATA, HIDP_TRANS_CONTROL:
			// Output reports and HID_CONTROL have no state to apply on a
			// relative mouse; acknowledged by silence per HIDP.
		default:
			hsk[0] |= HIDP_HSHK_ERR_UNKNOWN
			if _, err := unix.Write(fd, hsk); err != nil {
				log.Printf("HID_XPORT: handshake reply failed: %v", err)
			}
		}
	}
}

// Connected reports whether a peer's interrupt channel is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.intrFd >= 0
}

// Peer returns the connected host address, empty when disconnected.
func (t *Transport) Peer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intrFd < 0 {
		return ""
	}
	return t.peer
}

// SendReport pushes one input report down the interrupt channel with the
// HIDP DATA|input header. A failed or timed out write drops the peer; the
// caller's sampling loop carries on regardless.
func (t *Transport) SendReport(report HIDReport) error {
	t.mu.Lock()
	fd := t.intrFd
	t.mu.Unlock()
	if fd < 0 {
		return errors.New("no peer connected")
	}

	if _, err := unix.Write(fd, reportFrame(report)); err != nil {
		log.Printf("HID_XPORT: report write failed (%v), dropping peer", err)
		t.DropPeer()
		return errors.Wrap(err, "write input report")
	}
	return nil
}

// reportFrame wraps an input report in the HIDP DATA|input transaction
// header expected on the interrupt channel.
func reportFrame(report HIDReport) []byte {
	return []byte{HIDP_DATA_INPUT, report[0], report[1], report[2]}
}

// DropPeer closes both peer channels but keeps listening for the next host.
func (t *Transport) DropPeer() {
	t.mu.Lock()
	peer := t.peer
	hadPeer := t.intrFd >= 0
	if t.ctrlFd >= 0 {
		unix.Close(t.ctrlFd)
		t.ctrlFd = -1
	}
	if t.intrFd >= 0 {
		unix.Close(t.intrFd)
		t.intrFd = -1
	}
	t.peer = ""
	t.mu.Unlock()

	if hadPeer {
		log.Printf("HID_XPORT: peer %s disconnected", peer)
		if t.onDisconnect != nil {
			t.onDisconnect(peer)
		}
	}
}

// Close shuts the transport down entirely. Safe to call twice.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.stopChan)
	if t.ctrlListener >= 0 {
		unix.Close(t.ctrlListener)
		t.ctrlListener = -1
	}
	if t.intrListener >= 0 {
		unix.Close(t.intrListener)
		t.intrListener = -1
	}
	t.mu.Unlock()

	t.DropPeer()
}
