package cmd

import "github.com/syafiqeil/mev-builder/config"

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = config.DefaultConfigFile

// DefaultEnvFilename describes the env file secrets are loaded from when --env-file is not used.
const DefaultEnvFilename = ".env"
