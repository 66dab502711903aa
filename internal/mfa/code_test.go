package mfa

import (
	"testing"
)

func TestGenerateCode_ReturnsSixDigits(t *testing.T) {
	code, err := GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("code contains non-digit: %c", c)
		}
	}
}

func TestGenerateCode_Randomness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if seen[code] {
			t.Errorf("duplicate code generated: %s", code)
		}
		seen[code] = true
	}
}

func TestHashCode_SaltChangesHash(t *testing.T) {
	h1 := HashCode("123456", "salt-a")
	h2 := HashCode("123456", "salt-b")
	if h1 == h2 {
		t.Error("same code with different salts should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(h1))
	}
}

func TestCodeEqual_CorrectMatch(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	stored := HashCode("123456", salt)
	if !CodeEqual("123456", salt, stored) {
		t.Error("CodeEqual should match correct code")
	}
	if CodeEqual("654321", salt, stored) {
		t.Error("CodeEqual should reject incorrect code")
	}
	if CodeEqual("123456", "wrong-salt", stored) {
		t.Error("CodeEqual should reject wrong salt")
	}
}

func TestFailed_CarriesReason(t *testing.T) {
	err := Failed("sms", ReasonRateLimited)
	if ReasonOf(err) != ReasonRateLimited {
		t.Errorf("ReasonOf = %q, want %q", ReasonOf(err), ReasonRateLimited)
	}
	if ReasonOf(nil) != "" {
		t.Error("ReasonOf(nil) should be empty")
	}
}
