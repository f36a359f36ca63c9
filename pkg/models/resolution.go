package models

import "github.com/google/uuid"

// VerificationMethod names the evidence behind a verification level.
type VerificationMethod string

const (
	VerificationProviderClaim   VerificationMethod = "provider_claim"
	VerificationEntityCard      VerificationMethod = "entity_card"
	VerificationTrustedProvider VerificationMethod = "trusted_provider"
	VerificationDualAttestation VerificationMethod = "dual_attestation"
)

// Verification levels.
const (
	LevelProviderClaim   = 0
	LevelSingleSide      = 1
	LevelDualAttestation = 2
)

// Verification is the computed verification of one MCP of an entity.
type Verification struct {
	Level       int                `json:"level"`
	Method      VerificationMethod `json:"method"`
	Attestation *Attestation       `json:"attestation,omitempty"`
}

// ResolvedMCP is one active MCP endpoint for a resolved entity.
type ResolvedMCP struct {
	Provider     string       `json:"provider"`
	Endpoint     string       `json:"endpoint"`
	EntityID     string       `json:"entity_id,omitempty"`
	Capabilities []string     `json:"capabilities"`
	Priority     int          `json:"priority,omitempty"`
	Verification Verification `json:"verification"`
}

// PendingProvider is a provider detected for an entity's domain that has not
// registered it. It is a discovery hint only.
type PendingProvider struct {
	ProviderDomain string   `json:"provider_domain"`
	Provider       string   `json:"provider"`
	Capabilities   []string `json:"capabilities"`
}

// ResolvedEntity is one logical entity after merging Entity Card and provider data.
type ResolvedEntity struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	Path              string            `json:"path"`
	Category          string            `json:"category,omitempty"`
	Location          *Location         `json:"location,omitempty"`
	VerificationLevel int               `json:"verification_level"`
	MCPs              []ResolvedMCP     `json:"mcps"`
	PendingProviders  []PendingProvider `json:"pending_providers"`
}

// ResolveResult is the outcome of resolving a domain.
type ResolveResult struct {
	Domain   string           `json:"domain"`
	Entities []ResolvedEntity `json:"entities"`
}

// MCPCount returns the number of MCPs across all entities.
func (r *ResolveResult) MCPCount() int {
	n := 0
	for i := range r.Entities {
		n += len(r.Entities[i].MCPs)
	}
	return n
}
