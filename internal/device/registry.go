package device

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/omnihq/omnilocation-go/internal/sim"
)

// NameStore persists user-assigned device names across restarts. A nil store
// keeps names in memory only.
type NameStore interface {
	// Load returns the persisted custom names keyed by UDID.
	Load(ctx context.Context) (map[string]string, error)
	// SaveName upserts the device row with its custom name.
	SaveName(ctx context.Context, dev Device) error
	// Touch updates the device's last-seen timestamp.
	Touch(ctx context.Context, udid string, at time.Time) error
	Close()
}

// Registry is the pool of known devices and their sinks.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*Device
	sinks   map[string]sim.Sink
	names   NameStore
}

// NewRegistry creates an empty pool. Persisted custom names are loaded
// lazily as devices are added.
func NewRegistry(names NameStore) *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		sinks:   make(map[string]sim.Sink),
		names:   names,
	}
}

// Add registers a device and the sink that reaches it. A persisted custom
// name, if any, overrides the zero value on the passed device.
func (r *Registry) Add(ctx context.Context, dev Device, sink sim.Sink) error {
	if dev.UDID == "" {
		return fmt.Errorf("device: empty UDID")
	}
	if sink == nil {
		return fmt.Errorf("device: nil sink for %s", dev.UDID)
	}
	if dev.LastSeen.IsZero() {
		dev.LastSeen = time.Now()
	}

	if r.names != nil && dev.CustomName == "" {
		stored, err := r.names.Load(ctx)
		if err != nil {
			return fmt.Errorf("device: load names: %w", err)
		}
		if name, ok := stored[dev.UDID]; ok {
			dev.CustomName = name
		}
	}

	r.mu.Lock()
	r.devices[dev.UDID] = &dev
	r.sinks[dev.UDID] = sink
	r.mu.Unlock()

	if r.names != nil {
		if err := r.names.SaveName(ctx, dev); err != nil {
			return fmt.Errorf("device: persist %s: %w", dev.UDID, err)
		}
	}
	return nil
}

// Remove drops a device from the pool. Persisted names survive removal.
func (r *Registry) Remove(udid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[udid]; !ok {
		return ErrUnknownDevice
	}
	delete(r.devices, udid)
	delete(r.sinks, udid)
	return nil
}

// Get returns a copy of the device.
func (r *Registry) Get(udid string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[udid]
	if !ok {
		return Device{}, ErrUnknownDevice
	}
	return *dev, nil
}

// List returns the known devices sorted by UDID.
func (r *Registry) List() []Device {
	r.mu.Lock()
	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UDID < out[j].UDID })
	return out
}

// Rename assigns a custom name and persists it.
func (r *Registry) Rename(ctx context.Context, udid, name string) (Device, error) {
	r.mu.Lock()
	dev, ok := r.devices[udid]
	if !ok {
		r.mu.Unlock()
		return Device{}, ErrUnknownDevice
	}
	dev.CustomName = name
	updated := *dev
	r.mu.Unlock()

	if r.names != nil {
		if err := r.names.SaveName(ctx, updated); err != nil {
			return Device{}, fmt.Errorf("device: persist rename of %s: %w", udid, err)
		}
	}
	return updated, nil
}

// Touch refreshes the last-seen timestamp, in memory and in the store.
func (r *Registry) Touch(ctx context.Context, udid string, at time.Time) error {
	r.mu.Lock()
	dev, ok := r.devices[udid]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownDevice
	}
	dev.LastSeen = at
	r.mu.Unlock()

	if r.names != nil {
		if err := r.names.Touch(ctx, udid, at); err != nil {
			return fmt.Errorf("device: touch %s: %w", udid, err)
		}
	}
	return nil
}

// Sinks returns the current UDID-to-sink mapping for a simulation start.
// Every sink refreshes its device's last-seen time on successful pushes.
func (r *Registry) Sinks() map[string]sim.Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]sim.Sink, len(r.sinks))
	for udid, sink := range r.sinks {
		out[udid] = &touchSink{udid: udid, reg: r, next: sink}
	}
	return out
}

// SinksFor returns sinks for the selected UDIDs only; an empty selection
// means every registered device.
func (r *Registry) SinksFor(udids []string) (map[string]sim.Sink, error) {
	if len(udids) == 0 {
		return r.Sinks(), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]sim.Sink, len(udids))
	for _, udid := range udids {
		sink, ok := r.sinks[udid]
		if !ok {
			return nil, fmt.Errorf("device: %s: %w", udid, ErrUnknownDevice)
		}
		out[udid] = &touchSink{udid: udid, reg: r, next: sink}
	}
	return out, nil
}

// touchSink stamps the device's last-seen time after every successful push.
// Bookkeeping errors are logged, never surfaced to the session.
type touchSink struct {
	udid string
	reg  *Registry
	next sim.Sink
}

func (t *touchSink) Push(ctx context.Context, lat, lon float64) error {
	if err := t.next.Push(ctx, lat, lon); err != nil {
		return err
	}
	if err := t.reg.Touch(ctx, t.udid, time.Now()); err != nil {
		log.Printf("[device] touch %s failed: %v", t.udid, err)
	}
	return nil
}
