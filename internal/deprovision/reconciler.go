package deprovision

import (
	"context"
	"fmt"
	"strings"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// listAPI is the slice of the registry client the reconciler uses.
type listAPI interface {
	ListDevices(ctx context.Context, appID string) ([]registry.EndDevice, *registry.Response, error)
}

// Inventory exposes the internally tracked device identifiers.
// fleet's device repository satisfies this.
type Inventory interface {
	DeviceEUIs(ctx context.Context, orgID string) ([]string, error)
}

// Orphan is a registry-known device absent from internal tracking:
// abandoned external state that costs registry quota and confuses
// operators until removed.
type Orphan struct {
	DeviceID string `json:"device_id"`
	DevEUI   string `json:"dev_eui"`
}

// Reconciler diffs registry state against internal tracking. It never
// mutates anything on its own; enqueueing cleanup is a separate,
// explicitly authorised call.
type Reconciler struct {
	registry  listAPI
	inventory Inventory
	repo      *Repository
}

// NewReconciler creates a reconciler.
func NewReconciler(reg listAPI, inventory Inventory, repo *Repository) *Reconciler {
	return &Reconciler{registry: reg, inventory: inventory, repo: repo}
}

// FindOrphans lists the devices the registry holds under appID that
// internal tracking does not know about.
func (r *Reconciler) FindOrphans(ctx context.Context, orgID, appID string) ([]Orphan, error) {
	devices, _, err := r.registry.ListDevices(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("listing registry devices: %w", err)
	}

	tracked, err := r.inventory.DeviceEUIs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked devices: %w", err)
	}
	known := make(map[string]bool, len(tracked))
	for _, eui := range tracked {
		known[strings.ToUpper(eui)] = true
	}

	var orphans []Orphan
	for _, d := range devices {
		if d.DevEUI == "" || !known[strings.ToUpper(d.DevEUI)] {
			orphans = append(orphans, Orphan{
				DeviceID: d.DeviceID,
				DevEUI:   strings.ToUpper(d.DevEUI),
			})
		}
	}
	return orphans, nil
}

// EnqueueOrphans creates a MANUAL_CLEANUP job per orphan. The caller
// decides which orphans to pass; this is the authorisation boundary
// between observing external state and mutating it.
func (r *Reconciler) EnqueueOrphans(ctx context.Context, orgID, appID string, orphans []Orphan) ([]*Job, error) {
	jobs := make([]*Job, 0, len(orphans))
	for _, o := range orphans {
		registryID := o.DeviceID
		eui := o.DevEUI
		if eui == "" {
			// Some registry records omit the EUI; the device ID still
			// identifies what to remove.
			eui = o.DeviceID
		}
		job, err := r.repo.Enqueue(ctx, EnqueueParams{
			OrgID:                 orgID,
			EntityType:            EntityDevice,
			EntityEUI:             eui,
			RegistryID:            &registryID,
			RegistryApplicationID: appID,
			Reason:                ReasonManualCleanup,
		})
		if err != nil {
			return jobs, fmt.Errorf("enqueueing orphan %s: %w", o.DeviceID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
