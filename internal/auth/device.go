package auth

import (
	"crypto/sha256"
	"os"
	"os/user"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// DeviceID returns a stable identifier for this host + OS account,
// used for audit attribution on created sessions. The raw machine and
// account names never leave the device; only a Base58-encoded SHA-256
// fingerprint is submitted. Falls back to a random id when the host
// identity cannot be resolved.
func DeviceID() string {
	host, err := os.Hostname()
	if err != nil {
		return uuid.NewString()
	}

	account, err := user.Current()
	if err != nil {
		return uuid.NewString()
	}

	hash := sha256.Sum256([]byte(host + "_" + account.Username))
	return base58.Encode(hash[:])
}
