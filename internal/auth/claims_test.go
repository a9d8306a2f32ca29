package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testJWTSecret = "test-secret-key-for-jwt-signing-32b"

func TestGenerateAndParseAdminToken(t *testing.T) {
	token, expires, err := GenerateAdminToken("admin", testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAdminToken() returned empty token")
	}

	claims, err := ParseToken(token, testJWTSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("Subject = %q, want admin", claims.Subject)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if !claims.ExpiresAt.Time.Equal(expires.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, expires)
	}
	if err := RequireAdmin(claims); err != nil {
		t.Errorf("RequireAdmin() error = %v", err)
	}
}

func TestGenerateAdminToken_DefaultTTL(t *testing.T) {
	_, expires, err := GenerateAdminToken("admin", testJWTSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}

	diff := time.Until(expires) - 60*time.Minute
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~60 minutes, got diff %v", diff)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	valid, _, err := GenerateAdminToken("admin", testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: RoleAdmin,
	})
	expiredToken, err := expired.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"},
	})
	noRoleToken, err := noRole.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"empty", "", testJWTSecret},
		{"garbage", "not-a-valid-jwt", testJWTSecret},
		{"malformed", "abc.def", testJWTSecret},
		{"wrong secret", valid, "another-secret-key-for-jwt-signing"},
		{"expired", expiredToken, testJWTSecret},
		{"missing role", noRoleToken, testJWTSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireAdmin(nil) error = %v, want ErrForbidden", err)
	}
	if err := RequireAdmin(&CustomClaims{Role: "viewer"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireAdmin(viewer) error = %v, want ErrForbidden", err)
	}
}

func TestCheckAdminSecret(t *testing.T) {
	tests := []struct {
		name       string
		presented  string
		configured string
		want       bool
	}{
		{"match", "admin-secret-1234", "admin-secret-1234", true},
		{"mismatch", "admin-secret-1235", "admin-secret-1234", false},
		{"empty presented", "", "admin-secret-1234", false},
		{"empty configured", "x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckAdminSecret(tt.presented, tt.configured); got != tt.want {
				t.Errorf("CheckAdminSecret() = %v, want %v", got, tt.want)
			}
		})
	}
}
