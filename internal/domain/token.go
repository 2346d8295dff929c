package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const cardUpdateTokenBytes = 32

// NewCardUpdateToken generates the opaque single-use value embedded in a
// card-update link. 64 hex characters.
func NewCardUpdateToken() (string, error) {
	buf := make([]byte, cardUpdateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate card update token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
