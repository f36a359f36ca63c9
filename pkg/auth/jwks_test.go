package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.dockai.test"

// createUnsignedToken creates an alg=none JWT for dev-mode parsing.
func createUnsignedToken(claims *Claims) string {
	headerJSON, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	claimsJSON, _ := json.Marshal(claims)
	return base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON) + "."
}

// newJWKSServer serves the public half of key as a JWK set.
func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSClient_DevModeParsesWithoutVerification(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: false})
	require.NoError(t, err)

	token := createUnsignedToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: testIssuer},
		ProviderID:       "sevenrooms",
		Email:            "ops@sevenrooms.test",
	})

	claims, err := client.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "sevenrooms", claims.ProviderID)
	assert.Equal(t, "ops@sevenrooms.test", claims.Email)
}

func TestJWKSClient_DevModeRejectsGarbage(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: false})
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := client.ValidateToken(context.Background(), token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestJWKSClient_VerifiesRS256AgainstIssuerKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key, "key-1")

	client, err := NewJWKSClient(context.Background(), &JWKSConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{testIssuer: srv.URL},
	})
	require.NoError(t, err)

	valid := signToken(t, key, "key-1", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ProviderID: "sevenrooms",
	})

	claims, err := client.ValidateToken(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "sevenrooms", claims.ProviderID)

	t.Run("unknown issuer", func(t *testing.T) {
		token := signToken(t, key, "key-1", &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "https://evil.test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			ProviderID: "sevenrooms",
		})
		_, err := client.ValidateToken(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token := signToken(t, key, "key-1", &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
			ProviderID: "sevenrooms",
		})
		_, err := client.ValidateToken(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		token := createUnsignedToken(&Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testIssuer},
			ProviderID:       "sevenrooms",
		})
		_, err := client.ValidateToken(context.Background(), token)
		assert.Error(t, err)
	})
}
