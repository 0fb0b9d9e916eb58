package services

import "testing"

func TestCryptoService_RoundTrip(t *testing.T) {
	crypto := NewCryptoService("test-secret")

	plaintext := `{"cookies":[{"name":"sid","value":"abc123"}]}`
	ciphertext, err := crypto.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("failed encrypting: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := crypto.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("failed decrypting: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestCryptoService_NoncesDiffer(t *testing.T) {
	crypto := NewCryptoService("test-secret")

	first, err := crypto.Encrypt("same payload")
	if err != nil {
		t.Fatalf("failed encrypting: %v", err)
	}
	second, err := crypto.Encrypt("same payload")
	if err != nil {
		t.Fatalf("failed encrypting: %v", err)
	}
	if first == second {
		t.Fatal("two encryptions of the same payload produced identical ciphertext")
	}
}

func TestCryptoService_WrongKeyFails(t *testing.T) {
	ciphertext, err := NewCryptoService("key-one").Encrypt("payload")
	if err != nil {
		t.Fatalf("failed encrypting: %v", err)
	}

	if _, err := NewCryptoService("key-two").Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestCryptoService_TamperedCiphertextFails(t *testing.T) {
	crypto := NewCryptoService("test-secret")

	ciphertext, err := crypto.Encrypt("payload")
	if err != nil {
		t.Fatalf("failed encrypting: %v", err)
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-1] ^= 1
	if _, err := crypto.Decrypt(string(tampered)); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestCryptoService_GarbageInputFails(t *testing.T) {
	crypto := NewCryptoService("test-secret")

	if _, err := crypto.Decrypt("not base64 at all!!"); err == nil {
		t.Fatal("expected decryption of garbage input to fail")
	}
	if _, err := crypto.Decrypt(""); err == nil {
		t.Fatal("expected decryption of empty input to fail")
	}
}
