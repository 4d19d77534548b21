package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	opaqueTokenSize = 32
	nonceSize       = 16
)

// NewOTP returns a crypto-random numeric one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewOpaqueToken returns a 32-byte random token, base64url without padding.
// Used for CSRF tokens; the alphabet never contains ':' so signed-token
// framing stays unambiguous.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewNonce returns a 16-byte random nonce in standard base64, the form
// expected inside a Content-Security-Policy 'nonce-...' directive.
func NewNonce() (string, error) {
	var raw [nonceSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}
