package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// hubSecretBytes is the entropy of a generated hub secret (256-bit).
const hubSecretBytes = 32

// HubCredentials is a freshly provisioned hub identity. Secret is shown
// to the operator once; only SecretHash is stored.
type HubCredentials struct {
	HubID      string
	Secret     string
	SecretHash string
}

// GenerateHubCredentials creates a uuid hub id and a url-safe random
// secret, and hashes the secret.
func GenerateHubCredentials() (*HubCredentials, error) {
	b := make([]byte, hubSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating hub secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(b)

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}

	return &HubCredentials{
		HubID:      uuid.NewString(),
		Secret:     secret,
		SecretHash: hash,
	}, nil
}
