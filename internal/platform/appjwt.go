package platform

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appClaims mirrors the teacher's session-token Claims shape (jwt.RegisteredClaims
// embedding) but signs with RS256: GitHub-style app auth is asymmetric, a
// bearer session token never is.
type appClaims struct {
	jwt.RegisteredClaims
}

// appJWT mints the short-lived application JWT exchanged for an installation
// token (spec §4.1): iss = app id, iat backdated 60s for clock skew, exp 9
// minutes out (under the 10-minute ceiling the spec allows).
func appJWT(appID int64, key *rsa.PrivateKey) (string, error) {
	now := time.Now()
	claims := appClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strconv.FormatInt(appID, 10),
			IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("platform: sign app jwt: %w", err)
	}
	return signed, nil
}

// parsePrivateKey parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("platform: parse app private key: %w", err)
	}
	return key, nil
}
