package testutil

import (
	"ilp-go/internal/encryption"
	"ilp-go/internal/ilp"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() ilp.Encryptor {
	return encryption.NewTestEncryptor()
}
