// Package catalog enumerates capture devices and resolves device indices.
package catalog

import (
	"context"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/status"
)

// DefaultIndex selects the system default input device. It never appears in
// a listing.
const DefaultIndex = -1

const component = "catalog"

// Device is one entry of a listing. Index is stable for the listing it came
// from.
type Device struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// Config returns the device descriptor passed to the backend. The default
// sentinel yields a zero descriptor so the backend chooses.
func (d Device) Config() backend.DeviceInfo {
	if d.Index == DefaultIndex {
		return backend.DeviceInfo{}
	}
	return backend.DeviceInfo{Name: d.Name, ID: d.ID, IsDefault: d.IsDefault}
}

// Lister is the part of a backend the catalog needs.
type Lister interface {
	Devices(ctx context.Context) ([]backend.DeviceInfo, error)
}

// Catalog queries a backend for devices on every call.
type Catalog struct {
	lister Lister
}

// New returns a catalog over lister.
func New(lister Lister) *Catalog {
	return &Catalog{lister: lister}
}

// List returns the devices currently present, indexed from 0. No devices is
// an empty listing, not an error.
func (c *Catalog) List(ctx context.Context) ([]Device, error) {
	infos, err := c.lister.Devices(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.New(status.IoError, component, "list_devices", err)
		}
		return nil, status.Wrap(status.BackendError, component, "list_devices", err)
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			Index:     i,
			Name:      info.Name,
			ID:        info.ID,
			IsDefault: info.IsDefault,
		}
	}
	return devices, nil
}

// Names returns device names in index order.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	devices, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names, nil
}

// Resolve validates index against a fresh listing. DefaultIndex resolves to
// a sentinel device without querying the backend.
func (c *Catalog) Resolve(ctx context.Context, index int) (Device, error) {
	if index == DefaultIndex {
		return Device{Index: DefaultIndex}, nil
	}
	if index < DefaultIndex {
		return Device{}, status.Newf(status.InvalidArgument, component, "resolve_device",
			"device index %d is invalid, use %d for the default device or a listed index", index, DefaultIndex)
	}

	devices, err := c.List(ctx)
	if err != nil {
		return Device{}, err
	}
	if index >= len(devices) {
		return Device{}, status.Newf(status.InvalidArgument, component, "resolve_device",
			"device index %d out of range, %d devices available", index, len(devices))
	}
	return devices[index], nil
}
