package util

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateUUID() string {
	return uuid.NewString()
}

// NewCorrelationID returns the key that links a payment to a remote charge.
func NewCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
