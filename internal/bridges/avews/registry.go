package avews

import (
	"fmt"
	"sort"
	"sync"
)

// Key identifies a device on the controller.
type Key struct {
	Type int
	ID   int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Type, k.ID)
}

// Device is a controller device as tracked by the bridge.
type Device struct {
	Type       int    `json:"type"`
	ID         int    `json:"id"`
	ExternalID string `json:"external_id"`
	Label      string `json:"label"`
	Value      int    `json:"value"`
}

// Key returns the (type, id) pair of the device.
func (d Device) Key() Key {
	return Key{Type: d.Type, ID: d.ID}
}

// On reports whether the last observed value is non-zero.
func (d Device) On() bool {
	return d.Value != 0
}

// CreateDefaults permits UpsertValue to create a missing device.
type CreateDefaults struct {
	ExternalID string
	Label      string
}

// DynamicSensorDefaults returns the creation defaults for a sensor first
// seen through an upd event.
func DynamicSensorDefaults(id int) *CreateDefaults {
	return &CreateDefaults{
		ExternalID: fmt.Sprintf("at_sensor_%d", id),
		Label:      fmt.Sprintf("Antitheft sensor %d", id),
	}
}

// Outcome reports what UpsertValue did.
type Outcome int

const (
	// OutcomeAbsent means the device was unknown and no defaults were given.
	OutcomeAbsent Outcome = iota
	// OutcomeUnchanged means the stored value already matched.
	OutcomeUnchanged
	// OutcomeUpdated means an existing device changed value.
	OutcomeUpdated
	// OutcomeCreated means the device was created with the new value.
	OutcomeCreated
)

// Changed is true for OutcomeUpdated and OutcomeCreated.
func (o Outcome) Changed() bool {
	return o == OutcomeUpdated || o == OutcomeCreated
}

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	case OutcomeCreated:
		return "created"
	default:
		return "absent"
	}
}

// Registry holds the last observed value of every known device.
// Devices are never removed.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[Key]*Device
}

// NewRegistry creates a registry seeded with the given devices.
//
// Returns:
//   - *Registry: Ready for use
//   - error: ErrDuplicateDevice if two devices share a key
func NewRegistry(devices []Device) (*Registry, error) {
	r := &Registry{devices: make(map[Key]*Device, len(devices))}
	for _, d := range devices {
		if _, exists := r.devices[d.Key()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, d.Key())
		}
		dev := d
		r.devices[d.Key()] = &dev
	}
	return r, nil
}

// Find returns a copy of the device with the given key.
func (r *Registry) Find(deviceType, id int) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[Key{Type: deviceType, ID: id}]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// UpsertValue records a new value for a device.
//
// If the device is unknown and defaults is nil, nothing is stored and
// OutcomeAbsent is returned. With defaults, the device is created.
// Upserting the same value twice yields OutcomeUnchanged the second time.
func (r *Registry) UpsertValue(deviceType, id, value int, defaults *CreateDefaults) (Device, Outcome) {
	key := Key{Type: deviceType, ID: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[key]
	if !ok {
		if defaults == nil {
			return Device{}, OutcomeAbsent
		}
		d = &Device{
			Type:       deviceType,
			ID:         id,
			ExternalID: defaults.ExternalID,
			Label:      defaults.Label,
			Value:      value,
		}
		r.devices[key] = d
		return *d, OutcomeCreated
	}

	if d.Value == value {
		return *d, OutcomeUnchanged
	}
	d.Value = value
	return *d, OutcomeUpdated
}

// List returns a snapshot of all devices ordered by type then id.
func (r *Registry) List() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindByExternalID returns the device carrying the given hub identifier.
func (r *Registry) FindByExternalID(externalID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ExternalID == externalID {
			return *d, true
		}
	}
	return Device{}, false
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
