package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidPassword is returned by Verify when the password does not match.
	ErrInvalidPassword = errors.New("auth: invalid password")

	// ErrPasswordTooLong is returned by Hash for input bcrypt would truncate.
	ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// defaultCost is the bcrypt work factor. 12 takes roughly 250ms on a modern
// CPU, which is slow enough to hurt offline guessing and fast enough for a
// login form.
const defaultCost = 12

// PasswordService hashes and verifies passwords for the local identity
// provider. The hosted provider hashes on its side and never sees this code.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest uses a low cost so tests stay fast.
// bcrypt.MinCost is 4.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns a bcrypt hash of plaintext, or ErrPasswordTooLong.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash, ErrInvalidPassword when it
// does not, and another error when the hash itself is malformed.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
