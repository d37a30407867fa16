package config

import (
	"testing"
	"time"
)

func TestJWTSecretManagement(t *testing.T) {
	originalSecret := GetJWTSecret()
	newSecret := []byte("test-secret")

	t.Run("set and restore JWT secret", func(t *testing.T) {
		restore := SetJWTSecret(newSecret)

		if string(GetJWTSecret()) != string(newSecret) {
			t.Errorf("JWT secret not updated, got %s, want %s",
				string(GetJWTSecret()), string(newSecret))
		}

		restore()

		if string(GetJWTSecret()) != string(originalSecret) {
			t.Errorf("JWT secret not restored, got %s, want %s",
				string(GetJWTSecret()), string(originalSecret))
		}
	})

	t.Run("concurrent access to JWT secret", func(t *testing.T) {
		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func() {
				GetJWTSecret()
				done <- true
			}()
		}

		for i := 0; i < 10; i++ {
			<-done
		}
	})
}

func TestGetAccessTokenLifetime(t *testing.T) {
	t.Run("default lifetime", func(t *testing.T) {
		if got := GetAccessTokenLifetime(); got != 30*time.Minute {
			t.Errorf("GetAccessTokenLifetime() = %v, want %v", got, 30*time.Minute)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("ACCESS_TOKEN_LIFETIME", "1h")
		if got := GetAccessTokenLifetime(); got != time.Hour {
			t.Errorf("GetAccessTokenLifetime() = %v, want %v", got, time.Hour)
		}
	})
}
