package vault_test

import (
	"bytes"
	"errors"
	"testing"

	"erasure/internal/vault"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func sampleProfile() vault.ProfileData {
	return vault.ProfileData{
		FullName:    "John Smith",
		Aliases:     []string{"Johnny Smith"},
		DateOfBirth: "1980-03-15",
		Addresses: []vault.Address{
			{Street: "100 Main St", City: "Austin", State: "TX", Current: true},
		},
		PhoneNumbers: []vault.Phone{{Number: "512-555-0142", Type: "mobile"}},
		Relatives:    []string{"Mary Smith"},
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := vault.New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	p := sampleProfile()
	ct, nonce, tag, err := v.Encrypt(p)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(nonce) != 12 || len(tag) != 16 {
		t.Fatalf("nonce=%d tag=%d", len(nonce), len(tag))
	}
	got, err := v.Decrypt(ct, nonce, tag)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got.FullName != p.FullName || len(got.Addresses) != 1 || got.Addresses[0].City != "Austin" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestNonceVariesPerEncryption(t *testing.T) {
	v, _ := vault.New(testKey())
	p := sampleProfile()
	_, n1, _, err := v.Encrypt(p)
	if err != nil {
		t.Fatal(err)
	}
	_, n2, _, err := v.Encrypt(p)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatalf("nonce reused")
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	v, _ := vault.New(testKey())
	ct, nonce, tag, err := v.Encrypt(sampleProfile())
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), ct...)
	flipped[0] ^= 0x01
	if _, err := v.Decrypt(flipped, nonce, tag); !errors.Is(err, vault.ErrDecrypt) {
		t.Fatalf("tampered ciphertext: %v", err)
	}

	badTag := append([]byte(nil), tag...)
	badTag[0] ^= 0x01
	if _, err := v.Decrypt(ct, nonce, badTag); !errors.Is(err, vault.ErrDecrypt) {
		t.Fatalf("tampered tag: %v", err)
	}

	other, _ := vault.New(append(testKey()[:31], 0xFF))
	if _, err := other.Decrypt(ct, nonce, tag); !errors.Is(err, vault.ErrDecrypt) {
		t.Fatalf("wrong key: %v", err)
	}

	if _, err := v.Decrypt(ct, nonce[:4], tag); !errors.Is(err, vault.ErrDecrypt) {
		t.Fatalf("short nonce: %v", err)
	}
}

func TestKeySizeEnforced(t *testing.T) {
	if _, err := vault.New(make([]byte, 16)); err == nil {
		t.Fatalf("expected key size error")
	}
	if _, err := vault.FromHex("zz"); err == nil {
		t.Fatalf("expected hex error")
	}
}

func TestDataHashStableAndSensitive(t *testing.T) {
	p := sampleProfile()
	h1 := vault.DataHash(p)
	h2 := vault.DataHash(sampleProfile())
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	p.Addresses[0].City = "Dallas"
	if vault.DataHash(p) == h1 {
		t.Fatalf("hash unchanged after edit")
	}
}
