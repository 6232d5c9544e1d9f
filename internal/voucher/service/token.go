package service

import (
	"crypto/rand"
	"encoding/base64"
)

const qrTokenBytes = 32

// NewQRToken returns an unguessable base64url token for a voucher's QR code.
func NewQRToken() (string, error) {
	buf := make([]byte, qrTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
