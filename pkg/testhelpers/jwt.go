// Package testhelpers provides utilities for testing registry components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
)

// GenerateTestJWT creates an unsigned token (alg: none) for use when JWT
// verification is disabled. providerID is carried in the provider_id claim.
func GenerateTestJWT(sub, providerID, email string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s","exp":4102444800`, sub)
	if providerID != "" {
		payload += fmt.Sprintf(`,"provider_id":"%s"`, providerID)
	}
	if email != "" {
		payload += fmt.Sprintf(`,"email":"%s"`, email)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, providerID, email string) string {
	return "Bearer " + GenerateTestJWT(sub, providerID, email)
}
