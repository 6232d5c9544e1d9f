package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/smallbiznis/vouchr/internal/callbackauth/domain"
)

// canonicalPayload lists fields in lexicographic key order. encoding/json
// emits struct fields in declaration order, which keeps the encoding stable.
type canonicalPayload struct {
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	CustomerReference string      `json:"customerReference"`
	Status            string      `json:"status"`
	Timestamp         int64       `json:"timestamp"`
	TransactionID     string      `json:"transactionId"`
}

// CanonicalMessage returns the exact bytes a provider signs: compact JSON,
// sorted keys, no HTML escaping, amount in its shortest decimal form.
func CanonicalMessage(fields domain.SignableFields) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(canonicalPayload{
		Amount:            json.Number(fields.Amount.String()),
		Currency:          fields.Currency,
		CustomerReference: fields.CustomerReference,
		Status:            fields.Status,
		Timestamp:         fields.Timestamp,
		TransactionID:     fields.TransactionID,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign computes the lowercase hex HMAC-SHA256 a provider attaches to a callback.
func Sign(secret string, fields domain.SignableFields) (string, error) {
	msg, err := CanonicalMessage(fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
