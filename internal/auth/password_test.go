package auth

import (
	"errors"
	"strings"
	"testing"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHash_IsSaltedBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash1, err := ps.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hash2, _ := ps.Hash("same-password")

	if !strings.HasPrefix(hash1, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash1)
	}
	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash() should accept a 72-byte password, got error: %v", err)
	}
	if _, err := ps.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name      string
		hash      string
		password  string
		wantErr   bool
		wantWrong bool // expect ErrInvalidPassword specifically
	}{
		{"correct password", hash, "correct-horse-battery-staple", false, false},
		{"wrong password", hash, "short", true, true},
		{"empty password", hash, "", true, true},
		{"garbage hash", "not-a-valid-bcrypt-hash", "password", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrInvalidPassword) != tt.wantWrong {
				t.Errorf("errors.Is(err, ErrInvalidPassword) = %v, want %v", !tt.wantWrong, tt.wantWrong)
			}
		})
	}
}
