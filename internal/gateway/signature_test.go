package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyHMAC(t *testing.T) {
	payload := []byte(`{"event":"payment.succeeded","order_code":42}`)
	secret := "s3cret"

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	require.True(t, VerifyHMAC(payload, signature, secret))
	require.False(t, VerifyHMAC(payload, signature, "wrong-secret"))
	require.False(t, VerifyHMAC([]byte(`tampered`), signature, secret))
	require.False(t, VerifyHMAC(payload, "", secret))
}
