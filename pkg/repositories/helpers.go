package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dock-ai/registry/pkg/models"
)

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalLocation(loc *models.Location) ([]byte, error) {
	if loc.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location: %w", err)
	}
	return data, nil
}

func unmarshalLocation(data []byte) (*models.Location, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var loc models.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	if loc.IsZero() {
		return nil, nil
	}
	return &loc, nil
}
