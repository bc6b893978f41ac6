package nimona

import (
	"os"

	"github.com/mosaicnetworks/nimona/src/config"
)

// This example illustrates how a node is started from the default
// configuration, with a key, an address book and a store read from the data
// directory.
func Example() {
	// Start from default configuration.
	nimonaConfig := config.NewDefaultConfig()
	nimonaConfig.NoService = true

	// Instantiate the engine.
	engine := NewNimona(nimonaConfig)

	// Read in the configuration and initialise the node accordingly.
	if err := engine.Init(); err != nil {
		nimonaConfig.Logger().Error("Cannot initialize nimona:", err)
		os.Exit(1)
	}

	// Run the node aynchronously.
	go engine.Run()

	// Stop the node and close the store upon leaving.
	defer engine.Shutdown()
}
