package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

//go:generate mockery --name SourceConfig
type SourceConfig interface {
	Encrypt(cred map[string]any) (string, error)
	Decrypt(cipherText string) (map[string]any, error)
}

// AESVaultSourceConfig seals credential maps with AES-GCM. The nonce is stored
// alongside the ciphertext; the GCM tag gives tamper detection on decrypt.
type AESVaultSourceConfig struct {
	aead cipher.AEAD
}

func NewAESVaultSourceConfig(base64Key string) (*AESVaultSourceConfig, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &AESVaultSourceConfig{aead: aead}, nil
}

func (v *AESVaultSourceConfig) Encrypt(cred map[string]any) (string, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns an INTEGRITY fault when the authentication tag does not
// verify. Callers must treat that as credential-unusable, never as empty
// credentials.
func (v *AESVaultSourceConfig) Decrypt(cipherText string) (map[string]any, error) {
	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return nil, types.WrapFault(types.KindIntegrity, "decode ciphertext", err)
	}

	if len(sealed) < v.aead.NonceSize() {
		return nil, types.NewFault(types.KindIntegrity, "ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, types.WrapFault(types.KindIntegrity, "authentication tag mismatch", err)
	}

	cred := make(map[string]any)
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, types.WrapFault(types.KindIntegrity, "unmarshal credentials", err)
	}

	return cred, nil
}
