package models

import "time"

// Provider is a company operating an MCP endpoint that serves entities.
// Trusted is a curated registry-level flag: registrations from trusted
// providers start at verification level 1. Verified providers have completed
// onboarding and may authenticate with their API key.
type Provider struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Endpoint       string    `json:"endpoint"`
	ProviderDomain string    `json:"provider_domain,omitempty"`
	Capabilities   []string  `json:"capabilities"`
	Trusted        bool      `json:"trusted"`
	Verified       bool      `json:"verified"`
	APIKeyHash     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Registration is a provider entity joined with the provider that owns it:
// one provider's claim to serve an entity through its endpoint.
type Registration struct {
	ProviderEntity
	Endpoint             string   `json:"endpoint"`
	ProviderCapabilities []string `json:"provider_capabilities"`
	Trusted              bool     `json:"trusted"`
}

// EffectiveCapabilities returns the per-entity override when present, else the
// provider defaults.
func (r *Registration) EffectiveCapabilities() []string {
	if len(r.Capabilities) > 0 {
		return r.Capabilities
	}
	return r.ProviderCapabilities
}
