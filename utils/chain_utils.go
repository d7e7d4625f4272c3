package utils

import (
	"encoding/json"

	"github.com/crytic/medusa-geth/params"
)

// CopyChainConfig takes a chain configuration and creates a deep copy so that callers can adjust fork activation
// without mutating the shared geth defaults.
func CopyChainConfig(config *params.ChainConfig) (*params.ChainConfig, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	var chainConfig *params.ChainConfig
	err = json.Unmarshal(data, &chainConfig)
	if err != nil {
		return nil, err
	}
	return chainConfig, nil
}
