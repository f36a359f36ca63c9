package services

import (
	"slices"

	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/validation"
)

// MergeDomain joins the Entity Card of domain (may be nil) with the provider
// registrations linked to it into logical entities. Verification levels are
// computed here from both fact sets and never stored.
//
// Entities are ordered card declarations first, then provider-only paths by
// earliest registration. registrations must be in seq order.
func MergeDomain(domain string, card *models.EntityCard, registrations []*models.Registration, pending []models.PendingProvider) []models.ResolvedEntity {
	groups := groupByPath(card, registrations)

	entities := make([]models.ResolvedEntity, 0, len(groups))
	for _, g := range groups {
		entities = append(entities, g.resolve(domain, pending))
	}
	return entities
}

// pathGroup is everything known about one (domain, path).
type pathGroup struct {
	path          string
	card          *models.CardEntity
	registrations []*models.Registration
}

func groupByPath(card *models.EntityCard, registrations []*models.Registration) []*pathGroup {
	var groups []*pathGroup
	byPath := make(map[string]*pathGroup)

	if card != nil {
		for i := range card.Entities {
			ce := &card.Entities[i]
			if _, dup := byPath[ce.Path]; dup {
				continue
			}
			g := &pathGroup{path: ce.Path, card: ce}
			byPath[ce.Path] = g
			groups = append(groups, g)
		}
	}

	for _, r := range registrations {
		// Entities without a domain are reachable only by (provider, entity_id).
		if !r.IsLinked() {
			continue
		}
		g, ok := byPath[r.Path]
		if !ok {
			g = &pathGroup{path: r.Path}
			byPath[r.Path] = g
			groups = append(groups, g)
		}
		g.registrations = append(g.registrations, r)
	}
	return groups
}

type mcpKey struct {
	provider string
	endpoint string
}

func (g *pathGroup) resolve(domain string, pending []models.PendingProvider) models.ResolvedEntity {
	e := models.ResolvedEntity{
		ID:   models.LogicalEntityID(domain, g.path),
		Path: g.path,
	}

	if g.card != nil {
		e.Name = g.card.Name
		if !g.card.Location.IsZero() {
			e.Location = g.card.Location
		}
	}
	for _, r := range g.registrations {
		if e.Name == "" {
			e.Name = r.Name
		}
		if e.Category == "" {
			e.Category = r.Category
		}
		if e.Location == nil && !r.Location.IsZero() {
			e.Location = r.Location
		}
	}

	e.MCPs = g.mcps()
	slices.SortStableFunc(e.MCPs, func(a, b models.ResolvedMCP) int {
		return b.Priority - a.Priority
	})
	for _, m := range e.MCPs {
		e.VerificationLevel = max(e.VerificationLevel, m.Verification.Level)
	}

	e.PendingProviders = pendingFor(e.MCPs, pending)
	return e
}

// mcps builds the MCP list: card declarations in card order, then
// registrations no declaration accounts for, in seq order. Each (provider,
// endpoint) pair appears once.
func (g *pathGroup) mcps() []models.ResolvedMCP {
	out := make([]models.ResolvedMCP, 0)
	seen := make(map[mcpKey]struct{})
	claimed := make(map[*models.Registration]struct{})

	if g.card != nil {
		for i := range g.card.MCPs {
			m := &g.card.MCPs[i]
			key := mcpKey{provider: m.Provider, endpoint: validation.NormalizeEndpoint(m.Endpoint)}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			resolved := models.ResolvedMCP{
				Provider:     m.Provider,
				Endpoint:     key.endpoint,
				EntityID:     m.EntityID,
				Capabilities: m.Capabilities,
				Priority:     m.PriorityValue(),
				Verification: models.Verification{
					Level:       models.LevelSingleSide,
					Method:      models.VerificationEntityCard,
					Attestation: m.Verification,
				},
			}

			if r := g.matchingRegistration(key); r != nil {
				claimed[r] = struct{}{}
				resolved.Verification.Level = models.LevelDualAttestation
				resolved.Verification.Method = models.VerificationDualAttestation
				if resolved.EntityID == "" {
					resolved.EntityID = r.EntityID
				}
				if len(resolved.Capabilities) == 0 {
					resolved.Capabilities = r.EffectiveCapabilities()
				}
			}
			out = append(out, resolved)
		}
	}

	for _, r := range g.registrations {
		if _, ok := claimed[r]; ok {
			continue
		}
		key := mcpKey{provider: r.ProviderID, endpoint: validation.NormalizeEndpoint(r.Endpoint)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		v := models.Verification{Level: models.LevelProviderClaim, Method: models.VerificationProviderClaim}
		if r.Trusted {
			v = models.Verification{Level: models.LevelSingleSide, Method: models.VerificationTrustedProvider}
		}
		out = append(out, models.ResolvedMCP{
			Provider:     r.ProviderID,
			Endpoint:     key.endpoint,
			EntityID:     r.EntityID,
			Capabilities: r.EffectiveCapabilities(),
			Verification: v,
		})
	}

	for i := range out {
		if out[i].Capabilities == nil {
			out[i].Capabilities = []string{}
		}
	}
	return out
}

// matchingRegistration returns the earliest registration by the same
// provider whose endpoint equals key.endpoint.
func (g *pathGroup) matchingRegistration(key mcpKey) *models.Registration {
	for _, r := range g.registrations {
		if r.ProviderID == key.provider && validation.NormalizeEndpoint(r.Endpoint) == key.endpoint {
			return r
		}
	}
	return nil
}

// pendingFor returns the detected providers that are not already serving the
// entity.
func pendingFor(mcps []models.ResolvedMCP, pending []models.PendingProvider) []models.PendingProvider {
	out := make([]models.PendingProvider, 0, len(pending))
	for _, p := range pending {
		active := slices.ContainsFunc(mcps, func(m models.ResolvedMCP) bool {
			return m.Provider == p.Provider
		})
		if !active {
			out = append(out, p)
		}
	}
	return out
}
