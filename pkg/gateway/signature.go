package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignPayload computes the hex HMAC-SHA256 of "orderRef|paymentRef"
// under the given secret. This is the signature scheme the gateway uses
// on payment callbacks.
func SignPayload(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderRef, paymentRef)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the presented signature matches the
// expected HMAC for the order/payment pair. Comparison is constant time.
func (c *Client) VerifySignature(orderRef, paymentRef, signature string) bool {
	if c == nil || orderRef == "" || paymentRef == "" || signature == "" {
		return false
	}
	expected := SignPayload(c.keySecret, orderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}
