package commands

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

var (
	privKeyFile           string
	pubKeyFile            string
	passphrase            string
	defaultPrivateKeyFile = fmt.Sprintf("%s/priv_key", _config.Nimona.DataDir)
	defaultPublicKeyFile  = fmt.Sprintf("%s/key.pub", _config.Nimona.DataDir)
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", defaultPrivateKeyFile, "File where the private key will be written")
	cmd.Flags().StringVar(&pubKeyFile, "pub", defaultPublicKeyFile, "File where the public key will be written")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Encrypt the private key with this passphrase")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already lives under: %s", path.Dir(privKeyFile))
	}

	key, err := keys.GenerateKey()
	if err != nil {
		return fmt.Errorf("Error generating key: %s", err)
	}

	var keyfile *keys.SimpleKeyfile
	if passphrase != "" {
		keyfile = keys.NewEncryptedKeyfile(privKeyFile, passphrase)
	} else {
		keyfile = keys.NewSimpleKeyfile(privKeyFile)
	}

	if err := keyfile.WriteKey(key); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(path.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	pub := key.PublicKey().String()

	if err := os.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	fmt.Printf("Your public key has been saved to: %s\n", pubKeyFile)

	return nil
}
