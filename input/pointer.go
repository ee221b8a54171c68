// Package input samples the local pointer. It is the thin collaborator
// boundary in front of the kernel's input layer: the rest of the daemon only
// sees PointerSample values.
package input

import (
	"log"
	"os"
	"sync"

	"github.com/scipioni/mouse-controller/utils"
)

// Source delivers the current pointer state on demand. Sample never blocks;
// it returns the most recent state the source has seen.
type Source interface {
	Start() error
	Sample() utils.PointerSample
	Stop()
}

// DefaultDevice is the kernel's aggregated PS/2-compatible mouse stream.
const DefaultDevice = "/dev/input/mice"

// MiceSource reads 3-byte PS/2-style packets from /dev/input/mice on its
// own goroutine and accumulates them into a virtual absolute position, so
// the sampling loop can diff consecutive samples the same way it would with
// a windowing library's pointer query.
type MiceSource struct {
	device string

	mu      sync.Mutex
	current utils.PointerSample

	file     *os.File
	stopOnce sync.Once
}

func NewMiceSource(device string) *MiceSource {
	if device == "" {
		device = DefaultDevice
	}
	return &MiceSource{device: device}
}

func (s *MiceSource) Start() error {
	f, err := os.Open(s.device)
	if err != nil {
		return err
	}
	s.file = f
	go s.readLoop()
	log.Printf("INPUT: reading pointer packets from %s", s.device)
	return nil
}

func (s *MiceSource) readLoop() {
	buf := make([]byte, 3)
	for {
		if _, err := readFull(s.file, buf); err != nil {
			log.Printf("INPUT: read loop stopped: %v", err)
			return
		}

		dx, dy, buttons, ok := DecodePacket(buf)
		if !ok {
			continue
		}

		s.mu.Lock()
		s.current.Position.X += dx
		s.current.Position.Y += dy
		s.current.Buttons = buttons
		s.mu.Unlock()
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := f.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}

// Sample returns the latest accumulated pointer state.
func (s *MiceSource) Sample() utils.PointerSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *MiceSource) Stop() {
	s.stopOnce.Do(func() {
		if s.file != nil {
			s.file.Close()
		}
	})
}

// DecodePacket parses one PS/2 mouse packet. Byte 0 carries the button bits
// (0x01 left, 0x02 right, 0x04 middle), the sync bit 0x08, the X/Y sign
// bits 0x10/0x20 and the overflow bits; bytes 1 and 2 are the 9-bit
// movement magnitudes. The kernel's Y axis grows upward, HID's grows
// downward, so dy is inverted here. A packet without the sync bit is
// stream noise and reports ok=false.
func DecodePacket(pkt []byte) (dx, dy int, buttons utils.Buttons, ok bool) {
	if len(pkt) < 3 || pkt[0]&0x08 == 0 {
		return 0, 0, utils.Buttons{}, false
	}

	buttons = utils.Buttons{
		Left:   pkt[0]&0x01 != 0,
		Right:  pkt[0]&0x02 != 0,
		Middle: pkt[0]&0x04 != 0,
	}

	dx = int(pkt[1])
	if pkt[0]&0x10 != 0 {
		dx -= 256
	}
	dy = int(pkt[2])
	if pkt[0]&0x20 != 0 {
		dy -= 256
	}
	return dx, -dy, buttons, true
}
