package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// entityNamespace seeds the name-based UUIDs of logical (domain, path) entities.
var entityNamespace = uuid.MustParse("5b0f3c2e-6a1d-4c8e-9f2a-d0c4a1e7b9f3")

// Coordinates is a GPS position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is the physical location of an entity.
type Location struct {
	City        string       `json:"city,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// IsZero reports whether the location carries no information.
func (l *Location) IsZero() bool {
	return l == nil || (l.City == "" && l.Country == "" && l.Coordinates == nil)
}

// Equal compares two locations field by field. A nil location equals a zero one.
func (l *Location) Equal(o *Location) bool {
	if l.IsZero() || o.IsZero() {
		return l.IsZero() && o.IsZero()
	}
	if l.City != o.City || l.Country != o.Country {
		return false
	}
	if l.Coordinates == nil || o.Coordinates == nil {
		return l.Coordinates == nil && o.Coordinates == nil
	}
	return *l.Coordinates == *o.Coordinates
}

// EntityInput is one entity as submitted by a provider through the sync or
// operations API. Both the flat location fields used by full sync and the
// nested location object used by the operations API are accepted.
type EntityInput struct {
	EntityID     string    `json:"entity_id"`
	Name         string    `json:"name"`
	Domain       string    `json:"domain,omitempty"`
	Path         string    `json:"path,omitempty"`
	Category     string    `json:"category,omitempty"`
	Location     *Location `json:"location,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`

	// Priority is accepted so payloads produced from Entity Card templates
	// decode cleanly, but it is never stored. Only Entity Cards set priority.
	Priority *int `json:"priority,omitempty"`
}

// MergedLocation folds the flat location fields into the nested form. Nested
// values win; flat values fill the gaps.
func (in *EntityInput) MergedLocation() *Location {
	loc := Location{City: in.City, Country: in.Country}
	if in.Lat != nil || in.Lng != nil {
		c := Coordinates{}
		if in.Lat != nil {
			c.Lat = *in.Lat
		}
		if in.Lng != nil {
			c.Lng = *in.Lng
		}
		loc.Coordinates = &c
	}
	if in.Location != nil {
		if in.Location.City != "" {
			loc.City = in.Location.City
		}
		if in.Location.Country != "" {
			loc.Country = in.Location.Country
		}
		if in.Location.Coordinates != nil {
			c := *in.Location.Coordinates
			loc.Coordinates = &c
		}
	}
	if loc.IsZero() {
		return nil
	}
	return &loc
}

// HasPartialCoordinates reports whether exactly one of the flat lat/lng fields is set.
func (in *EntityInput) HasPartialCoordinates() bool {
	return (in.Lat == nil) != (in.Lng == nil)
}

// ProviderEntity is one row of a provider's owned slice of the registry: the
// provider's claim that it serves an entity. Entities with a Domain are linked
// to every other claim and Entity Card declaration at the same (Domain, Path);
// entities without one are private to the provider.
type ProviderEntity struct {
	ProviderID   string    `json:"provider_id"`
	EntityID     string    `json:"entity_id"`
	Domain       string    `json:"domain,omitempty"`
	Path         string    `json:"path,omitempty"`
	Name         string    `json:"name"`
	Category     string    `json:"category,omitempty"`
	Location     *Location `json:"location,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Seq          int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SameContent compares the provider-controlled fields of two rows. Identity,
// ordering and timestamps are ignored.
func (e *ProviderEntity) SameContent(o *ProviderEntity) bool {
	return e.EntityID == o.EntityID &&
		e.Domain == o.Domain &&
		e.Path == o.Path &&
		e.Name == o.Name &&
		e.Category == o.Category &&
		e.Location.Equal(o.Location) &&
		slices.Equal(e.Capabilities, o.Capabilities)
}

// IsLinked reports whether the entity participates in (domain, path) matching.
func (e *ProviderEntity) IsLinked() bool {
	return e.Domain != ""
}

// LogicalEntityID returns the stable identifier of the logical entity at
// (domain, path).
func LogicalEntityID(domain, path string) uuid.UUID {
	return uuid.NewSHA1(entityNamespace, []byte(domain+path))
}
