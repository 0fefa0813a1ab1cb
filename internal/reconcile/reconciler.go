// Package reconcile merges locally stored device records with live status
// data from the collector API. Devices drive every join: a device without
// remote data still appears with sentinel status fields, and remote nodes
// with no stored device are dropped.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	inventory "ncm-portal/internal/inventory/domain"
	"ncm-portal/internal/nodeapi"
)

const (
	// StatusNotRegistered marks a stored device the collector does not know.
	StatusNotRegistered = "not_registered"
	// StatusNever marks a registered node that was never collected.
	StatusNever = "never"
	// MTimeUnknown is the list-view sentinel for a missing modification time.
	MTimeUnknown = "unknown"

	// versionNotFound is the collector's in-band sentinel for a bad version
	// reference. It arrives as the first element of an otherwise normal
	// payload and must become a NotFound, not content.
	versionNotFound = "version not found"
)

// ErrNotFound indicates an unknown device address, or the collector's
// explicit version-not-found sentinel.
var ErrNotFound = errors.New("reconcile: not found")

// EnrichedDevice is a device row joined with the collector's list data.
// It deliberately has no secret fields.
type EnrichedDevice struct {
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	Status    string     `json:"status"`
	MTime     string     `json:"mtime"`
	Time      *string    `json:"time"`
}

// DeviceDetail is one device joined with the collector's detail data and
// version history.
type DeviceDetail struct {
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Type      string            `json:"type"`
	Username  string            `json:"username"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt *time.Time        `json:"updated_at"`
	Status    string            `json:"status"`
	Time      *string           `json:"time"`
	MTime     *string           `json:"mtime"`
	Versions  []nodeapi.Version `json:"versions"`
}

// Reconciler joins the device store with the collector API.
type Reconciler struct {
	devices inventory.Repository
	api     *nodeapi.Client
	logger  *log.Logger
}

// NewReconciler constructs a reconciler.
func NewReconciler(devices inventory.Repository, api *nodeapi.Client, logger *log.Logger) (*Reconciler, error) {
	if devices == nil {
		return nil, errors.New("reconcile: nil device repository")
	}
	if api == nil {
		return nil, errors.New("reconcile: nil api client")
	}
	return &Reconciler{devices: devices, api: api, logger: logger}, nil
}

// ListEnrichedDevices performs the address-keyed left join of all stored
// devices against the collector's node list. A collector failure fails the
// whole listing; a device the collector does not know gets sentinel fields.
func (r *Reconciler) ListEnrichedDevices(ctx context.Context) ([]EnrichedDevice, error) {
	devices, err := r.devices.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := r.api.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]nodeapi.Node, len(nodes))
	for _, node := range nodes {
		byAddress[node.IP] = node
	}

	result := make([]EnrichedDevice, 0, len(devices))
	for _, device := range devices {
		enriched := EnrichedDevice{
			Name:      device.Name,
			Address:   device.Address,
			Type:      device.Type,
			CreatedAt: device.CreatedAt,
			UpdatedAt: device.UpdatedAt,
			Status:    StatusNotRegistered,
			MTime:     MTimeUnknown,
		}
		if node, ok := byAddress[device.Address]; ok {
			enriched.Status = node.Status
			enriched.MTime = node.MTime
			enriched.Time = node.Time
		}
		result = append(result, enriched)
	}
	return result, nil
}

// GetEnrichedDevice joins one device with the collector's detail payload and
// version history. A collector failure degrades to sentinel status fields
// rather than failing the request; an unknown address is ErrNotFound.
//
// A detail payload without a "last" object is normalized to
// {status: "never", end: null} so display code never needs that null check.
func (r *Reconciler) GetEnrichedDevice(ctx context.Context, address string) (*DeviceDetail, error) {
	device, err := r.devices.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	detail := &DeviceDetail{
		Name:      device.Name,
		Address:   device.Address,
		Type:      device.Type,
		Username:  device.Username,
		CreatedAt: device.CreatedAt,
		UpdatedAt: device.UpdatedAt,
		Status:    StatusNotRegistered,
		Versions:  []nodeapi.Version{},
	}

	node, err := r.api.NodeShow(ctx, address)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("reconcile: node detail for %s unavailable: %v", address, err)
		}
		node = nil
	}
	if node != nil {
		if node.Last == nil {
			node.Last = &nodeapi.LastRun{Status: StatusNever, End: nil}
		}
		detail.Status = node.Last.Status
		detail.Time = node.Last.End
		if node.MTime != "" {
			mtime := node.MTime
			detail.MTime = &mtime
		}
	}

	detail.Versions = r.GetVersions(ctx, address)
	return detail, nil
}

// GetVersions returns the numbered version history for address. Numbers run
// from the version count down to 1 in the order the collector reported; the
// collector's ordering is trusted as-is. Unavailable version data collapses
// to an empty slice for display, never an error.
func (r *Reconciler) GetVersions(ctx context.Context, address string) []nodeapi.Version {
	versions, err := r.api.NodeVersions(ctx, address)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("reconcile: versions for %s unavailable: %v", address, err)
		}
		return []nodeapi.Version{}
	}
	num := len(versions)
	for i := range versions {
		versions[i].Num = num - i
	}
	return versions
}

// GetConfig returns a configuration blob for address. With an empty oid it
// fetches the live config; otherwise it fetches the historical version named
// by oid/date/num. The collector reports a bad version reference in-band as
// a payload whose first element is "version not found"; that becomes
// ErrNotFound, not content.
func (r *Reconciler) GetConfig(ctx context.Context, address, oid, date, num string) (string, error) {
	if oid == "" {
		body, err := r.api.NodeFetch(ctx, address)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	lines, err := r.api.VersionView(ctx, address, oid, date, num)
	if err != nil {
		return "", err
	}
	if len(lines) > 0 && lines[0] == versionNotFound {
		return "", fmt.Errorf("%w: version %s", ErrNotFound, oid)
	}
	return strings.Join(lines, ""), nil
}

// NodeStats returns the collector's raw status statistics payload.
func (r *Reconciler) NodeStats(ctx context.Context) ([]byte, error) {
	return r.api.NodeStats(ctx)
}

// ReloadAll triggers a collector-wide node database reload. Success means
// the trigger completed, not that anything was refreshed.
func (r *Reconciler) ReloadAll(ctx context.Context) error {
	return r.api.ReloadAll(ctx)
}

// ReloadDevice triggers a configuration re-fetch for one device. The device
// must exist locally; the trigger itself is fire-and-forget.
func (r *Reconciler) ReloadDevice(ctx context.Context, address string) error {
	if _, err := r.devices.FindByAddress(ctx, address); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return r.api.ReloadNode(ctx, address)
}
