package config

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/utils"
)

// Environment variables holding secrets and endpoint overrides.
const (
	EnvAttackerKey = "ATTACKER_KEY"
	EnvAuthKey     = "FLASHBOTS_AUTH_KEY"
	EnvRpcUrl      = "RPC_URL"
	EnvWsUrl       = "WSS_URL"
)

// Secrets holds the values that never go into the project config file.
type Secrets struct {
	// AttackerKey signs the submitted transactions.
	AttackerKey *ecdsa.PrivateKey
	// AuthKey signs relay requests.
	AuthKey *ecdsa.PrivateKey
	// RpcUrl and WsUrl override the configured endpoints when set.
	RpcUrl string
	WsUrl  string
}

// LoadSecrets reads secrets from the environment after loading envFiles into it. Files that do not exist are
// skipped, and variables already set in the environment win over file values. Keys that are not set are left nil.
func LoadSecrets(envFiles ...string) (*Secrets, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, errors.Wrapf(err, "could not load %s", file)
		}
	}

	secrets := &Secrets{
		RpcUrl: strings.TrimSpace(os.Getenv(EnvRpcUrl)),
		WsUrl:  strings.TrimSpace(os.Getenv(EnvWsUrl)),
	}
	var err error
	if secrets.AttackerKey, err = readKey(EnvAttackerKey); err != nil {
		return nil, err
	}
	if secrets.AuthKey, err = readKey(EnvAuthKey); err != nil {
		return nil, err
	}
	return secrets, nil
}

// ApplyOverrides copies endpoint overrides into projectConfig.
func (s *Secrets) ApplyOverrides(projectConfig *ProjectConfig) {
	if s.RpcUrl != "" {
		projectConfig.Fork.RpcUrl = s.RpcUrl
	}
	if s.WsUrl != "" {
		projectConfig.Fork.WsUrl = s.WsUrl
	}
}

// RequireSigningKeys returns an error when a key needed for submission is missing.
func (s *Secrets) RequireSigningKeys() error {
	if s.AttackerKey == nil {
		return errors.Errorf("%s must be set to submit bundles", EnvAttackerKey)
	}
	if s.AuthKey == nil {
		return errors.Errorf("%s must be set to submit bundles", EnvAuthKey)
	}
	return nil
}

func readKey(name string) (*ecdsa.PrivateKey, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, nil
	}
	key, err := utils.GetPrivateKeyFromHex(value)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid %s", name)
	}
	return key, nil
}
