package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/packetio"
)

// packetDump writes read packets to a packetio file.
//
// The payload is copied into the record before Save returns, so the caller
// may release the packet right after.
type packetDump struct {
	mu     sync.Mutex
	w      *packetio.Writer
	saved  atomic.Uint64
	failed atomic.Uint64
}

// newPacketDump creates the dump file, and its directory if needed
func newPacketDump(path string, compress bool) (*packetDump, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	w, err := packetio.Create(path, compress)
	if err != nil {
		return nil, err
	}
	return &packetDump{w: w}, nil
}

// Save appends pkt to the dump. Safe for concurrent use.
func (d *packetDump) Save(pkt *devicecapture.Packet) error {
	d.mu.Lock()
	err := d.w.Write(packetio.FromPacket(pkt))
	d.mu.Unlock()

	if err != nil {
		d.failed.Add(1)
		return err
	}
	d.saved.Add(1)
	return nil
}

// Stats returns saved and failed counts
func (d *packetDump) Stats() (saved, failed uint64) {
	return d.saved.Load(), d.failed.Load()
}

// Close flushes and closes the dump file
func (d *packetDump) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Close()
}
