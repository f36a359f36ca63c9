package models

import "time"

// EntityCardSchemaVersion is the only Entity Card schema version accepted.
const EntityCardSchemaVersion = "0.2.0"

// EntityCardPath is the well-known path an Entity Card is hosted at.
const EntityCardPath = "/.well-known/entity-card.json"

// EntityCard is the document a business hosts to declare its entities and the
// MCP providers that serve them.
type EntityCard struct {
	SchemaVersion string       `json:"schema_version"`
	Domain        string       `json:"domain"`
	Entities      []CardEntity `json:"entities"`
}

// CardEntity is one entity declared in an Entity Card.
type CardEntity struct {
	Name     string    `json:"name"`
	Path     string    `json:"path,omitempty"`
	Location *Location `json:"location,omitempty"`
	MCPs     []CardMCP `json:"mcps"`
}

// CardMCP is an MCP provider declared by the domain owner. Priority is an
// ordering hint (higher is preferred) and can only come from a card.
type CardMCP struct {
	Provider     string       `json:"provider"`
	Endpoint     string       `json:"endpoint"`
	EntityID     string       `json:"entity_id,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Priority     *int         `json:"priority,omitempty"`
	Verification *Attestation `json:"verification,omitempty"`
}

// PriorityValue returns the declared priority, or 0.
func (m *CardMCP) PriorityValue() int {
	if m.Priority == nil {
		return 0
	}
	return *m.Priority
}

// Attestation is optional signed-attestation metadata attached to a card MCP.
// It is carried through to resolve responses untouched.
type Attestation struct {
	Method    string     `json:"method,omitempty"`
	Signature string     `json:"signature,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IndexedCard is an Entity Card accepted through submission.
type IndexedCard struct {
	Domain    string      `json:"domain"`
	Card      *EntityCard `json:"card"`
	FetchedAt time.Time   `json:"fetched_at"`
	IndexedAt time.Time   `json:"indexed_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
