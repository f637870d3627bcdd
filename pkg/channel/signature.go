package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

// Sign computes the HMAC-SHA256 of body using the channel's encoding
// convention.
func Sign(secret string, body []byte, encoding string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)
	if strings.EqualFold(encoding, config.SignatureEncodingHex) {
		return hex.EncodeToString(sum)
	}
	return base64.StdEncoding.EncodeToString(sum)
}

// VerifySignature compares the header against the expected HMAC in constant
// time. An empty secret or header never verifies.
func VerifySignature(secret string, body []byte, header, encoding string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	expected := Sign(secret, body, encoding)
	if strings.EqualFold(encoding, config.SignatureEncodingHex) {
		header = strings.ToLower(header)
	}
	return hmac.Equal([]byte(expected), []byte(header))
}
