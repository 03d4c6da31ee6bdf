package wsgateway

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestAuthManager_ValidateToken(t *testing.T) {
	auth := NewAuthManager("test-secret")

	tokenString := makeToken(t, "test-secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	userID, err := auth.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Expected valid token, got error: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("Expected user-42, got %s", userID)
	}
}

func TestAuthManager_SubjectFallback(t *testing.T) {
	auth := NewAuthManager("test-secret")

	tokenString := makeToken(t, "test-secret", jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	userID, err := auth.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Expected valid token, got error: %v", err)
	}
	if userID != "user-7" {
		t.Errorf("Expected user-7, got %s", userID)
	}
}

func TestAuthManager_WrongSecret(t *testing.T) {
	auth := NewAuthManager("test-secret")

	tokenString := makeToken(t, "other-secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.ValidateToken(tokenString); err == nil {
		t.Error("Expected error for token signed with wrong secret")
	}
}

func TestAuthManager_ExpiredToken(t *testing.T) {
	auth := NewAuthManager("test-secret")

	tokenString := makeToken(t, "test-secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := auth.ValidateToken(tokenString); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestAuthManager_NoSecretAllowsDefault(t *testing.T) {
	auth := NewAuthManager("")

	userID, err := auth.ValidateToken("anything")
	if err != nil {
		t.Fatalf("Expected no error without configured secret, got: %v", err)
	}
	if userID != "default" {
		t.Errorf("Expected default user, got %s", userID)
	}
}

func TestAuthManager_ExtractToken(t *testing.T) {
	auth := NewAuthManager("test-secret")

	tests := []struct {
		name    string
		header  string
		query   string
		want    string
		wantErr bool
	}{
		{"bearer header", "Bearer abc123", "", "abc123", false},
		{"bare token header", "abc123", "", "abc123", false},
		{"query parameter", "", "xyz789", "xyz789", false},
		{"query wins over header", "Bearer abc123", "xyz789", "xyz789", false},
		{"wrong scheme", "Basic abc123", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ExtractToken(tt.header, tt.query)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
