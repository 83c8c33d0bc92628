package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const sessionCodeLength = 6

// GenerateSessionCode generates a short numeric rendezvous code. Uniqueness
// is enforced by the registry, not here.
func GenerateSessionCode() string {
	code := make([]byte, sessionCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand failing is not recoverable here; fall back to a
			// time-derived digit rather than panic.
			code[i] = byte('0' + time.Now().UnixNano()%10)
			continue
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code)
}

// GenerateInstanceID returns a unique identifier for this broker process.
func GenerateInstanceID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a unique request ID for log correlation.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
