package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/nimona/src/object"
)

var (
	cidCodec string
	cidIPFS  bool
	cidCheck bool
)

// NewCIDCmd produces a command that prints the CID of an encoded object.
func NewCIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cid [file]",
		Short: "Print the CID of an object read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printCID,
	}

	cmd.Flags().StringVar(&cidCodec, "codec", string(object.JSONCodec), "Codec of the input: json, cbor or msgpack")
	cmd.Flags().BoolVar(&cidIPFS, "ipfs", false, "Also print the CID in its IPFS form")
	cmd.Flags().BoolVar(&cidCheck, "verify", false, "Verify the signature of the object")

	return cmd
}

func printCID(cmd *cobra.Command, args []string) error {
	codec, err := object.ParseCodec(cidCodec)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	o, err := object.Unmarshal(codec, data)
	if err != nil {
		return err
	}

	cid, err := object.Hash(o)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cid)

	if cidIPFS {
		ic, err := cid.IPFS()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ic.String())
	}

	if cidCheck {
		ok, err := object.Verify(o)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature does not verify")
		}
		fmt.Fprintf(out, "signed by %s\n", o.Signer())
	}

	return nil
}
