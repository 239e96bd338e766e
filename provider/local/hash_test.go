package local

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := hashPassword(testHash, "P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, rehash, err := verifyPassword(testHash, "P@ssw0rd-Ascii", encoded)
	if err != nil || !ok || rehash {
		t.Fatalf("expected match without rehash, got ok=%v rehash=%v err=%v", ok, rehash, err)
	}
	ok, _, err = verifyPassword(testHash, "P@ssw0rd-ascii", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyFlagsWeakerParams(t *testing.T) {
	encoded, err := hashPassword(testHash, "P@ssw0rd")
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	want := testHash
	want.Memory = 16 * 1024
	ok, rehash, err := verifyPassword(want, "P@ssw0rd", encoded)
	if err != nil || !ok || !rehash {
		t.Fatalf("expected rehash, got ok=%v rehash=%v err=%v", ok, rehash, err)
	}
}

func TestParseHashRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$",
	} {
		if _, err := parseHash(encoded); !errors.Is(err, errMalformedHash) {
			t.Fatalf("parseHash(%q) = %v, want errMalformedHash", encoded, err)
		}
	}
}

func TestHashParamsValidate(t *testing.T) {
	if err := DefaultHashParams().validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	p := DefaultHashParams()
	p.SaltLength = 8
	if err := p.validate(); err == nil {
		t.Fatal("expected short salt rejected")
	}
}
