package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier defines the interface for verifying the shared
// service credential presented by trusted backend collaborators.
type CredentialVerifier interface {
	// Verify compares the presented credential against the configured
	// hash. Returns nil on success or ErrInvalidCredential on mismatch.
	Verify(credential string) error
}

// BcryptCredentialVerifier implements CredentialVerifier using bcrypt.
type BcryptCredentialVerifier struct {
	hash []byte
}

// NewBcryptCredentialVerifier creates a verifier for the given bcrypt hash.
func NewBcryptCredentialVerifier(hash string) (*BcryptCredentialVerifier, error) {
	if hash == "" {
		return nil, errors.New("credential hash cannot be empty")
	}
	return &BcryptCredentialVerifier{hash: []byte(hash)}, nil
}

var _ CredentialVerifier = (*BcryptCredentialVerifier)(nil)

// Verify implements the CredentialVerifier interface using bcrypt.
func (v *BcryptCredentialVerifier) Verify(credential string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(credential)); err != nil {
		return ErrInvalidCredential
	}
	return nil
}
