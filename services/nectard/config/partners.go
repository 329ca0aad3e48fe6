package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nectar/crypto"
	gatewayauth "nectar/gateway/auth"
)

// Partner is a single entry in the partner registry file.
type Partner struct {
	ID      string `yaml:"id"`
	APIKey  string `yaml:"api_key"`
	Secret  string `yaml:"secret"`
	Address string `yaml:"address"`
}

type partnersFile struct {
	Partners []Partner `yaml:"partners"`
}

// LoadPartners reads the partner registry and resolves it into HMAC
// credentials keyed by API key.
func LoadPartners(path string) (map[string]gatewayauth.Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partners file: %w", err)
	}
	var doc partnersFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode partners file: %w", err)
	}
	if len(doc.Partners) == 0 {
		return nil, fmt.Errorf("partners file %s declares no partners", path)
	}
	creds := make(map[string]gatewayauth.Credential, len(doc.Partners))
	for i, p := range doc.Partners {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("partner %d: id required", i)
		}
		key := strings.TrimSpace(p.APIKey)
		if key == "" {
			return nil, fmt.Errorf("partner %s: api_key required", id)
		}
		if strings.TrimSpace(p.Secret) == "" {
			return nil, fmt.Errorf("partner %s: secret required", id)
		}
		addr, err := crypto.DecodeAddress(strings.TrimSpace(p.Address))
		if err != nil {
			return nil, fmt.Errorf("partner %s: %w", id, err)
		}
		if _, exists := creds[key]; exists {
			return nil, fmt.Errorf("partner %s: duplicate api key", id)
		}
		creds[key] = gatewayauth.Credential{
			Secret:  p.Secret,
			Partner: addr.Array(),
		}
	}
	return creds, nil
}
