package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is what the provider prepends to the hex digest in the
// X-Hub-Signature-256 header.
const signaturePrefix = "sha256="

// ValidSignature checks that header carries the HMAC-SHA256 of body under
// secret, using a constant-time comparison. It must be fed the exact raw
// request bytes: re-serializing the parsed payload can change whitespace and
// key order and break the digest.
func ValidSignature(body []byte, header, secret string) bool {
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	claimed, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(claimed, mac.Sum(nil))
}
