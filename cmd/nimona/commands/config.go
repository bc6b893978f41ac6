package commands

import (
	"github.com/mosaicnetworks/nimona/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Nimona config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Nimona: *config.NewDefaultConfig(),
	}
}
