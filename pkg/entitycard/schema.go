package entitycard

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/validation"
)

//go:embed entity_card.schema.json
var schemaJSON []byte

const schemaResource = "entity_card.schema.json"

// maxReasons caps how many schema violations are reported back.
const maxReasons = 5

// Validator checks Entity Card documents against the 0.2.0 JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded Entity Card schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	if err := compiler.AddResource(schemaResource, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add entity card schema: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile entity card schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Parse validates body as the Entity Card hosted on hostedOn and returns it
// normalized: lowercase domain, normalized paths, endpoints and capabilities.
// hostedOn may be empty to skip the domain-match check (local files).
func (v *Validator) Parse(body []byte, hostedOn string) (*models.EntityCard, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &apperrors.InvalidCardError{Reason: "document is not valid JSON"}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &apperrors.InvalidCardError{Reason: "document must be a JSON object"}
	}
	if version, _ := obj["schema_version"].(string); version != models.EntityCardSchemaVersion {
		return nil, &apperrors.InvalidCardError{
			Reason: fmt.Sprintf("unsupported schema_version %q (expected %q)", version, models.EntityCardSchemaVersion),
		}
	}

	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, &apperrors.InvalidCardError{Reason: describe(verr)}
		}
		return nil, &apperrors.InvalidCardError{Reason: err.Error()}
	}

	var card models.EntityCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, &apperrors.InvalidCardError{Reason: err.Error()}
	}

	declared, err := validation.NormalizeDomain(card.Domain)
	if err != nil {
		return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("invalid domain %q", card.Domain)}
	}
	if hostedOn != "" && declared != hostedOn {
		return nil, &apperrors.DomainMismatchError{Declared: card.Domain, HostedOn: hostedOn}
	}
	card.Domain = declared

	for i := range card.Entities {
		e := &card.Entities[i]
		path, err := validation.NormalizePath(e.Path)
		if err != nil {
			return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("entities[%d].path: %v", i, err)}
		}
		e.Path = path
		if e.Location != nil {
			e.Location.Country = strings.ToUpper(e.Location.Country)
		}
		for j := range e.MCPs {
			m := &e.MCPs[j]
			m.Provider = strings.TrimSpace(m.Provider)
			m.Endpoint = validation.NormalizeEndpoint(m.Endpoint)
			if err := validation.ValidateEndpoint(m.Endpoint); err != nil {
				return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("entities[%d].mcps[%d].endpoint: %v", i, j, err)}
			}
			if m.Priority != nil {
				if err := validation.ValidatePriority(*m.Priority); err != nil {
					return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("entities[%d].mcps[%d].priority: %v", i, j, err)}
				}
			}
			caps, err := validation.NormalizeCapabilities(m.Capabilities)
			if err != nil {
				return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("entities[%d].mcps[%d]: %v", i, j, err)}
			}
			m.Capabilities = caps
		}
	}

	return &card, nil
}

// describe flattens the leaf causes of a schema violation into one line.
func describe(err *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				loc = "(root)"
			}
			leaves = append(leaves, strings.ReplaceAll(loc, "/", ".")+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(err)

	sort.Strings(leaves)
	if len(leaves) > maxReasons {
		leaves = append(leaves[:maxReasons], fmt.Sprintf("and %d more", len(leaves)-maxReasons))
	}
	return strings.Join(leaves, "; ")
}
