package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	"gorm.io/datatypes"
)

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type secretPayload struct {
	Secret string `json:"secret"`
}

func encryptSecret(key []byte, secret string) (datatypes.JSON, error) {
	if len(key) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}

	payload, err := json.Marshal(secretPayload{Secret: secret})
	if err != nil {
		return nil, domain.ErrInvalidSecret
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	encoded := encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(out), nil
}

func decryptSecret(key []byte, encrypted datatypes.JSON) (string, error) {
	if len(key) == 0 {
		return "", domain.ErrEncryptionKeyMissing
	}
	if len(encrypted) == 0 {
		return "", domain.ErrInvalidConfig
	}

	var payload encryptedPayload
	if err := json.Unmarshal(encrypted, &payload); err != nil {
		return "", domain.ErrInvalidConfig
	}
	if payload.Version != 1 {
		return "", domain.ErrInvalidConfig
	}

	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return "", domain.ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", domain.ErrInvalidConfig
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", domain.ErrInvalidConfig
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.ErrInvalidConfig
	}

	var out secretPayload
	if err := json.Unmarshal(plain, &out); err != nil {
		return "", domain.ErrInvalidConfig
	}
	if strings.TrimSpace(out.Secret) == "" {
		return "", domain.ErrInvalidConfig
	}
	return out.Secret, nil
}
