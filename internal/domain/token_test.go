package domain

import (
	"encoding/hex"
	"testing"
)

func TestNewCardUpdateToken(t *testing.T) {
	t.Parallel()

	token, err := NewCardUpdateToken()
	if err != nil {
		t.Fatalf("NewCardUpdateToken() error = %v", err)
	}
	if len(token) != cardUpdateTokenBytes*2 {
		t.Fatalf("token length = %d, want %d", len(token), cardUpdateTokenBytes*2)
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	other, err := NewCardUpdateToken()
	if err != nil {
		t.Fatalf("NewCardUpdateToken() error = %v", err)
	}
	if token == other {
		t.Fatal("two generated tokens are identical")
	}
}
