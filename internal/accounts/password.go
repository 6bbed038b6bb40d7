package accounts

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no account matches, keeping login timing uniform.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z5Q1bHqA6HkJZ8x0Jm7mWvHe")

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
