package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for nimona
var RootCmd = &cobra.Command{
	Use:              "nimona",
	Short:            "nimona stream node",
	TraverseChildren: true,
}
