package subledger

import (
	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Capability keys checked by the subledger services. Tokens are issued
// by the identity service; this engine only evaluates them.
const (
	CapabilityAgingRead     = "subledger:aging:read"
	CapabilityItemsRead     = "subledger:items:read"
	CapabilityItemsWrite    = "subledger:items:write"
	CapabilityCashApply     = "subledger:cash:apply"
	CapabilityDunningRead   = "subledger:dunning:read"
	CapabilityReconRead     = "subledger:recon:read"
	CapabilityReconMatch    = "subledger:recon:match"
	CapabilityWriteOffApply = "subledger:writeoff:apply"
)

// Actor identifies the authenticated caller of a service operation
type Actor struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Capabilities []string
}

// Can reports whether the actor holds the named capability
func (a Actor) Can(capability string) bool {
	for _, granted := range a.Capabilities {
		if granted == capability {
			return true
		}
	}
	return false
}

// requireCapability returns a FORBIDDEN domain error when the actor
// lacks the capability
func requireCapability(actor Actor, capability string) error {
	if !actor.Can(capability) {
		return shared.ErrForbidden
	}
	return nil
}
