package promptreg

import (
	"crypto/rand"
	"strings"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewSecurityToken generates a random 32-character alphanumeric string
// prefixed SEC_TOKEN_, per spec §3 SecurityToken.
func NewSecurityToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SEC_TOKEN_")
	for _, b := range buf {
		sb.WriteByte(tokenAlphabet[int(b)%len(tokenAlphabet)])
	}
	return sb.String(), nil
}

// EmbedToken repeats the token through a block of filler text so it appears
// at least minOccurrences times in the prompt, per spec §3 ("embedded >=20
// times in the prompt").
func EmbedToken(token string, minOccurrences int) string {
	var sb strings.Builder
	sb.WriteString("SECURITY VERIFICATION TOKEN (repeat verbatim in the security_token field of your JSON response):\n")
	for i := 0; i < minOccurrences; i++ {
		sb.WriteString(token)
		sb.WriteString(" ")
	}
	sb.WriteString("\n")
	return sb.String()
}
