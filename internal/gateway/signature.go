package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerifyHMAC checks a hex-encoded HMAC-SHA512 signature over the raw
// webhook body. Constant-time comparison.
func VerifyHMAC(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return false
	}
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
