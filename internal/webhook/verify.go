package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// verifySignature implements spec §6's "X-Hub-Signature-256 =
// 'sha256=' + lowercase_hex(HMAC_SHA256(secret, raw_body))", compared in
// constant time over decoded bytes, not strings.
func verifySignature(secret []byte, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}
