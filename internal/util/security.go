package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCPF derives a stable lookup key for a CPF. The same CPF always yields
// the same hash for a given key, so logins can be found by CPF without
// storing it in clear text.
func HashCPF(key, cpf string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(NormalizeCPF(cpf)))
	return hex.EncodeToString(mac.Sum(nil))
}

func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
