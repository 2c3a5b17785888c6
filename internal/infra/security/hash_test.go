package security

import (
	"errors"
	"strings"
	"testing"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2Hasher(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	encoded, err := hasher.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := hasher.Verify("Secret123", encoded)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("Secret124", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail")
	}
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2Hasher(cfg); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestArgon2VerifyInvalidFormat(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testArgon2Config())
	if _, err := hasher.Verify("pw", "argon2id$v=19$broken"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestBcryptHashAndVerify(t *testing.T) {
	hasher := NewBcryptHasher(4)

	encoded, err := hasher.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !isBcryptHash(encoded) {
		t.Fatalf("expected bcrypt prefix, got %q", encoded)
	}

	ok, err := hasher.Verify("Secret123", encoded)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("nope", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, ok=%v err=%v", ok, err)
	}
}

func TestMultiHasherVerifiesAcrossAlgorithms(t *testing.T) {
	argonFirst, err := NewPasswordHasher(HasherOptions{Algorithm: "argon2id", BcryptCost: 4, Argon2: testArgon2Config()})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	bcryptFirst, err := NewPasswordHasher(HasherOptions{Algorithm: "bcrypt", BcryptCost: 4, Argon2: testArgon2Config()})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}

	fromBcrypt, err := bcryptFirst.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	fromArgon, err := argonFirst.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	for _, encoded := range []string{fromBcrypt, fromArgon} {
		ok, err := argonFirst.Verify("Secret123", encoded)
		if err != nil || !ok {
			t.Fatalf("expected %q to verify, ok=%v err=%v", encoded, ok, err)
		}
	}

	if _, err := argonFirst.Verify("Secret123", "plaintext"); !errors.Is(err, ErrUnknownHashFormat) {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestNewPasswordHasherRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := NewPasswordHasher(HasherOptions{Algorithm: "md5", Argon2: testArgon2Config()}); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
