package auth

import "testing"

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatalf("hash equals plaintext")
	}
	if !CheckPassword("correct horse battery", hash) {
		t.Fatalf("valid password rejected")
	}
	if CheckPassword("wrong password", hash) {
		t.Fatalf("invalid password accepted")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("malformed hash accepted")
	}
}
