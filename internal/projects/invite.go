package projects

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	inviteCodeLength   = 8
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateInviteCode returns an 8 character uppercase base36 code.
func GenerateInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(inviteCodeLength)
	alphabetSize := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < inviteCodeLength; i++ {
		n, errRand := rand.Int(rand.Reader, alphabetSize)
		if errRand != nil {
			return "", fmt.Errorf("projects: invite code: %w", errRand)
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode trims and upper-cases a user supplied code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
