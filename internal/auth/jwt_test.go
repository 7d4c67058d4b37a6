package auth

import (
	"os"
	"sync"
	"testing"
	"time"
)

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
// This is only safe to call from test code.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	// The sync.Once captures this value on the first ValidateJWTSecret call
	os.Setenv(JWTSecretEnv, "test-jwt-secret-that-is-32-chars-!")
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("short secret accepted with warning", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "short")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
		if GetJWTSecret() != "short" {
			t.Errorf("GetJWTSecret() = %q, want short", GetJWTSecret())
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error in production mode without secret, got nil")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})

	resetJWTSecret()
}

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()
	t.Setenv(JWTSecretEnv, "test-jwt-secret-that-is-32-chars-!")

	t.Run("round trip", func(t *testing.T) {
		token, err := GenerateJWT(42, "host@radio.test", "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.UserID != 42 {
			t.Errorf("claims.UserID = %d, want 42", claims.UserID)
		}
		if claims.Email != "host@radio.test" || claims.Role != "admin" {
			t.Errorf("claims = %+v", claims)
		}
		if claims.Subject != "42" {
			t.Errorf("claims.Subject = %q, want 42", claims.Subject)
		}
		if claims.Issuer != tokenIssuer {
			t.Errorf("claims.Issuer = %q, want %q", claims.Issuer, tokenIssuer)
		}
		if claims.ID == "" {
			t.Error("claims.ID (token id) is empty")
		}
	})

	t.Run("token ids are unique", func(t *testing.T) {
		a, _ := GenerateJWT(1, "a@radio.test", "editor", time.Hour)
		b, _ := GenerateJWT(1, "a@radio.test", "editor", time.Hour)
		ca, _ := ValidateJWT(a)
		cb, _ := ValidateJWT(b)
		if ca.ID == cb.ID {
			t.Error("two tokens share a token id")
		}
	})

	t.Run("default expiry when zero duration", func(t *testing.T) {
		token, err := GenerateJWT(1, "u@radio.test", "editor", 0)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining < 23*time.Hour || remaining > 25*time.Hour {
			t.Errorf("default expiry remaining = %v, want ~24h", remaining)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT(1, "u@radio.test", "editor", -time.Second)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token); err == nil {
			t.Error("ValidateJWT() expected error for expired token, got nil")
		}
	})

	t.Run("invalid token string", func(t *testing.T) {
		if _, err := ValidateJWT("not.a.valid.token"); err == nil {
			t.Error("ValidateJWT() expected error for garbage token, got nil")
		}
	})

	t.Run("empty token string", func(t *testing.T) {
		if _, err := ValidateJWT(""); err == nil {
			t.Error("ValidateJWT() expected error for empty token, got nil")
		}
	})

	t.Run("token signed with different secret is rejected", func(t *testing.T) {
		token, err := GenerateJWT(1, "u@radio.test", "editor", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "completely-different-secret-32ch!")

		if _, err := ValidateJWT(token); err == nil {
			t.Error("ValidateJWT() expected error for token signed with different secret, got nil")
		}

		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "test-jwt-secret-that-is-32-chars-!")
	})
}

func TestHashAndCheckPassword(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Errorf("HashPassword(short) error = %v, want ErrPasswordTooShort", err)
	}

	hash, err := HashPassword("on-air-2024!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "on-air-2024!" {
		t.Error("hash equals plaintext")
	}
	if !CheckPassword("on-air-2024!", hash) {
		t.Error("CheckPassword() = false for correct password")
	}
	if CheckPassword("off-air", hash) {
		t.Error("CheckPassword() = true for wrong password")
	}
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Error("CheckPassword() = true for malformed hash")
	}
}
