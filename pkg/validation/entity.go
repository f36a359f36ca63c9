package validation

import (
	"fmt"
	"strings"

	"github.com/dock-ai/registry/pkg/models"
)

// EntityProblem is a per-entity validation failure. Message is returned to
// the submitting provider verbatim.
type EntityProblem struct {
	Field   string
	Message string
	Cause   error
}

func (p *EntityProblem) Error() string { return p.Message }

func (p *EntityProblem) Unwrap() error { return p.Cause }

func problem(field, message string, cause error) *EntityProblem {
	return &EntityProblem{Field: field, Message: message, Cause: cause}
}

// NormalizeEntity validates a provider submission and converts it into the
// stored row for providerID. Any submitted priority is dropped.
func NormalizeEntity(providerID string, in *models.EntityInput) (*models.ProviderEntity, error) {
	entityID := strings.TrimSpace(in.EntityID)
	if entityID == "" {
		return nil, problem("entity_id", "Missing entity_id", nil)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, problem("name", "Missing name", nil)
	}
	if len(name) > MaxNameLength {
		return nil, problem("name", fmt.Sprintf("Name exceeds %d characters", MaxNameLength), nil)
	}

	out := &models.ProviderEntity{
		ProviderID: providerID,
		EntityID:   entityID,
		Name:       name,
		Category:   strings.TrimSpace(in.Category),
	}

	if strings.TrimSpace(in.Domain) != "" {
		domain, err := NormalizeDomain(in.Domain)
		if err != nil {
			return nil, problem("domain", fmt.Sprintf("Invalid domain %q", in.Domain), err)
		}
		path, err := NormalizePath(in.Path)
		if err != nil {
			return nil, problem("path", fmt.Sprintf("Invalid path %q", in.Path), err)
		}
		out.Domain = domain
		out.Path = path
	}

	if in.HasPartialCoordinates() {
		return nil, problem("location", "Invalid location coordinates", nil)
	}
	loc := in.MergedLocation()
	if loc != nil {
		if loc.Coordinates != nil {
			if err := ValidateCoordinates(loc.Coordinates.Lat, loc.Coordinates.Lng); err != nil {
				return nil, problem("location", "Invalid location coordinates", err)
			}
		}
		country, err := NormalizeCountry(loc.Country)
		if err != nil {
			return nil, problem("location.country", "Invalid country code", err)
		}
		loc.Country = country
		loc.City = strings.TrimSpace(loc.City)
		out.Location = loc
	}

	caps, err := NormalizeCapabilities(in.Capabilities)
	if err != nil {
		return nil, problem("capabilities", err.Error(), err)
	}
	out.Capabilities = caps

	return out, nil
}

// NormalizeCapabilities trims and de-duplicates caps, keeping first-seen order,
// and validates each token. A nil or empty input yields nil.
func NormalizeCapabilities(caps []string) ([]string, error) {
	if len(caps) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(caps))
	seen := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		c = strings.TrimSpace(c)
		if err := ValidateCapability(c); err != nil {
			return nil, fmt.Errorf("Invalid capability %q", c) //nolint:staticcheck // returned to API callers
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
