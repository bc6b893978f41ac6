package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

func TestCIDCmd(t *testing.T) {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	data := object.NewMap()
	data.Set("text", object.String("hello"))
	o, err := object.Sign(object.New("note", data, object.Metadata{}), key)
	if err != nil {
		t.Fatal(err)
	}

	for _, codec := range []object.Codec{object.JSONCodec, object.CBORCodec, object.MsgpackCodec} {
		t.Run(string(codec), func(t *testing.T) {
			b, err := object.Marshal(codec, o)
			if err != nil {
				t.Fatal(err)
			}

			cmd := NewCIDCmd()
			out := &bytes.Buffer{}
			cmd.SetIn(bytes.NewReader(b))
			cmd.SetOut(out)
			cmd.SetArgs([]string{"--codec", string(codec), "--verify"})

			if err := cmd.Execute(); err != nil {
				t.Fatal(err)
			}

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if lines[0] != o.CID().String() {
				t.Fatalf("expected %s, got %s", o.CID(), lines[0])
			}
			if !strings.Contains(lines[len(lines)-1], key.PublicKey().String()) {
				t.Fatalf("signer not printed: %s", out.String())
			}
		})
	}
}
