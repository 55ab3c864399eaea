package codec

import (
	"encoding/hex"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, plaintext := range []string{"", "hola", "Gracias por tu compra, Ana 🎉", strings.Repeat("x", 100_000)} {
		token, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if token == plaintext && plaintext != "" {
			t.Fatal("token equals plaintext")
		}

		got, err := c.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q", got)
		}
	}
}

func TestCodecNonceUniqueness(t *testing.T) {
	t.Parallel()

	c, _ := New(testKey)
	a, _ := c.Encrypt("same message")
	b, _ := c.Encrypt("same message")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical tokens")
	}
}

func TestCodecRejectsBadKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"too short", hex.EncodeToString(make([]byte, 16))},
		{"too long", hex.EncodeToString(make([]byte, 48))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.key); err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}

func TestCodecRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	c, _ := New(testKey)
	token, _ := c.Encrypt("payload")

	if _, err := c.Decrypt("not base64 !!!"); err == nil {
		t.Error("Decrypt of garbage succeeded")
	}
	if _, err := c.Decrypt("c2hvcnQ="); err == nil {
		t.Error("Decrypt of short token succeeded")
	}

	// Flip a character in the body of the token.
	tampered := []byte(token)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	if _, err := c.Decrypt(string(tampered)); err == nil {
		t.Error("Decrypt of tampered token succeeded")
	}
}
