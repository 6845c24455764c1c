package vault

import (
	"encoding/json"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// InMemoryVaultSourceConfig stores credentials unencrypted, for tests only.
type InMemoryVaultSourceConfig struct{}

func NewInMemoryVaultSourceConfig() *InMemoryVaultSourceConfig {
	return &InMemoryVaultSourceConfig{}
}

func (v *InMemoryVaultSourceConfig) Encrypt(cred map[string]any) (string, error) {
	out, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (v *InMemoryVaultSourceConfig) Decrypt(cipherText string) (map[string]any, error) {
	cred := make(map[string]any)
	if err := json.Unmarshal([]byte(cipherText), &cred); err != nil {
		return nil, types.WrapFault(types.KindIntegrity, "unmarshal credentials", err)
	}
	return cred, nil
}
