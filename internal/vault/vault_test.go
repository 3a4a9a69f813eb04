package vault

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(bytes.Repeat([]byte{0xab}, KeySize))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	if _, err := New(make([]byte, 16)); err == nil {
		t.Fatal("New() with 16-byte key expected error, got nil")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("New() with nil key expected error, got nil")
	}
}

func TestNewFromHex(t *testing.T) {
	if _, err := NewFromHex(strings.Repeat("ab", KeySize)); err != nil {
		t.Fatalf("NewFromHex() error = %v", err)
	}
	if _, err := NewFromHex("not hex"); err == nil {
		t.Fatal("NewFromHex() with invalid hex expected error, got nil")
	}
	// Valid hex, wrong length.
	if _, err := NewFromHex("abcd"); err == nil {
		t.Fatal("NewFromHex() with short key expected error, got nil")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := testVault(t)

	for _, plaintext := range []string{"n8n-api-secret", "", "multi\nline\nsecret"} {
		record, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}

		parts := strings.Split(record, ":")
		if len(parts) != 3 {
			t.Fatalf("Encrypt() record has %d fields, want 3", len(parts))
		}
		if iv, err := hex.DecodeString(parts[0]); err != nil || len(iv) != 16 {
			t.Errorf("record IV = %q, want 16 bytes of hex", parts[0])
		}
		if tag, err := hex.DecodeString(parts[1]); err != nil || len(tag) != 16 {
			t.Errorf("record tag = %q, want 16 bytes of hex", parts[1])
		}

		got, err := v.Decrypt(record)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plaintext {
			t.Errorf("Decrypt() = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	v := testVault(t)

	first, err := v.Encrypt("same secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := v.Encrypt("same secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if first == second {
		t.Error("two encryptions of the same plaintext produced identical records")
	}
}

func TestDecryptMalformedRecord(t *testing.T) {
	v := testVault(t)

	tests := []struct {
		name   string
		record string
	}{
		{"two fields", "aabb:ccdd"},
		{"four fields", "aa:bb:cc:dd"},
		{"non-hex IV", "zz:" + strings.Repeat("ab", 16) + ":abcd"},
		{"short IV", "abcd:" + strings.Repeat("ab", 16) + ":abcd"},
		{"non-hex tag", strings.Repeat("ab", 16) + ":zz:abcd"},
		{"non-hex ciphertext", strings.Repeat("ab", 16) + ":" + strings.Repeat("ab", 16) + ":zz"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.record)
			if !domain.KindOf(err, domain.ErrorKindMalformedRecord) {
				t.Errorf("Decrypt(%q) error = %v, want malformed_record", tt.record, err)
			}
		})
	}
}

func TestDecryptTamperedRecord(t *testing.T) {
	v := testVault(t)

	record, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip one nibble of the ciphertext field.
	tampered := []byte(record)
	last := len(tampered) - 1
	if tampered[last] == '0' {
		tampered[last] = '1'
	} else {
		tampered[last] = '0'
	}

	_, err = v.Decrypt(string(tampered))
	if !domain.KindOf(err, domain.ErrorKindAuthenticationFailure) {
		t.Errorf("Decrypt(tampered) error = %v, want authentication_failure", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	v := testVault(t)
	other, err := New(bytes.Repeat([]byte{0xcd}, KeySize))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	record, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := other.Decrypt(record); !domain.KindOf(err, domain.ErrorKindAuthenticationFailure) {
		t.Errorf("Decrypt() with wrong key error = %v, want authentication_failure", err)
	}
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey([]byte("passphrase"), []byte("salt1234"))
	if len(key) != KeySize {
		t.Fatalf("DeriveKey() returned %d bytes, want %d", len(key), KeySize)
	}

	again := DeriveKey([]byte("passphrase"), []byte("salt1234"))
	if !bytes.Equal(key, again) {
		t.Error("DeriveKey() is not deterministic for identical inputs")
	}

	different := DeriveKey([]byte("passphrase"), []byte("salt5678"))
	if bytes.Equal(key, different) {
		t.Error("DeriveKey() ignored the salt")
	}

	// Derived keys must be usable directly.
	if _, err := New(key); err != nil {
		t.Fatalf("New(derived key) error = %v", err)
	}
}

func TestHash(t *testing.T) {
	digest := Hash("wcp_test")
	if len(digest) != 64 {
		t.Fatalf("Hash() returned %d chars, want 64", len(digest))
	}
	if digest != Hash("wcp_test") {
		t.Error("Hash() is not deterministic")
	}
	if digest == Hash("wcp_other") {
		t.Error("Hash() collided on different inputs")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if !strings.HasPrefix(key.Plaintext, "wcp_") {
		t.Errorf("Plaintext = %q, want wcp_ prefix", key.Plaintext)
	}
	if len(key.Plaintext) != len("wcp_")+64 {
		t.Errorf("Plaintext length = %d, want %d", len(key.Plaintext), len("wcp_")+64)
	}
	if key.Digest != Hash(key.Plaintext) {
		t.Error("Digest does not match Hash(Plaintext)")
	}
	if key.DisplayPrefix != key.Plaintext[:12] {
		t.Errorf("DisplayPrefix = %q, want first 12 chars of plaintext", key.DisplayPrefix)
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if key.Plaintext == other.Plaintext {
		t.Error("two generated keys are identical")
	}
}
