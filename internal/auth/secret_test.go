package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashSecret_RoundTrip(t *testing.T) {
	hash, err := HashSecret("hub-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	ok, err := VerifySecret("hub-secret", hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if !ok {
		t.Error("VerifySecret() should return true for the correct secret")
	}

	ok, err = VerifySecret("other-secret", hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if ok {
		t.Error("VerifySecret() should return false for a wrong secret")
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	h1, err := HashSecret("same")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	h2, err := HashSecret("same")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same secret should have different salts")
	}
}

func TestVerifySecret_Legacy(t *testing.T) {
	legacy := LegacyHash("legacy-secret")
	if len(legacy) != 64 {
		t.Fatalf("LegacyHash() length = %d, want 64", len(legacy))
	}

	tests := []struct {
		name   string
		secret string
		hash   string
		want   bool
	}{
		{"match", "legacy-secret", legacy, true},
		{"uppercase digest", "legacy-secret", strings.ToUpper(legacy), true},
		{"mismatch", "other", legacy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifySecret(tt.secret, tt.hash)
			if err != nil {
				t.Fatalf("VerifySecret() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifySecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySecret_BadHashes(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrUnsupportedHash},
		{"short", "abc", ErrUnsupportedHash},
		{"non-hex legacy", strings.Repeat("z", 64), ErrUnsupportedHash},
		{"wrong part count", "$argon2id$v=19$m=65536", ErrInvalidPHCFormat},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA", ErrUnsupportedHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifySecret("secret", tt.hash)
			if ok {
				t.Error("VerifySecret() = true for a bad hash")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySecret() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateHubCredentials(t *testing.T) {
	creds, err := GenerateHubCredentials()
	if err != nil {
		t.Fatalf("GenerateHubCredentials() error = %v", err)
	}
	if len(creds.HubID) != 36 {
		t.Errorf("HubID = %q, want a uuid", creds.HubID)
	}
	if len(creds.Secret) != 43 {
		t.Errorf("Secret length = %d, want 43", len(creds.Secret))
	}
	if strings.ContainsAny(creds.Secret, "+/=") {
		t.Errorf("Secret %q is not url-safe", creds.Secret)
	}

	ok, err := VerifySecret(creds.Secret, creds.SecretHash)
	if err != nil || !ok {
		t.Errorf("VerifySecret(generated) = %v, %v", ok, err)
	}
}
