package keys

import (
	"bytes"
	"os"
	"path"
	"testing"

	"github.com/mosaicnetworks/nimona/src/common"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	// Initialize a key and try a write
	key, _ = GenerateKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should get key
	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !bytes.Equal(nKey, key) {
		t.Fatalf("Keys do not match")
	}
}

func TestEncryptedKeyfile(t *testing.T) {
	dir := t.TempDir()
	keyPath := path.Join(dir, "priv_key")

	kf := NewEncryptedKeyfile(keyPath, "correct horse")
	kf.SetWorkFactor(10)

	key, _ := GenerateKey()
	if err := kf.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	raw, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if bytes.Contains(raw, []byte(common.EncodeToString(key.Seed()))) {
		t.Fatalf("key file contains the plain seed")
	}

	nKey, err := NewEncryptedKeyfile(keyPath, "correct horse").ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !bytes.Equal(nKey, key) {
		t.Fatalf("Keys do not match")
	}

	if _, err := NewEncryptedKeyfile(keyPath, "wrong").ReadKey(); err == nil {
		t.Fatalf("reading with the wrong passphrase should fail")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateKey()
	rawKey := common.EncodeToString(key.Seed())

	badKeyPath := path.Join(dir, "priv_key_bad")

	// random selection of permissions that should not be accepted.
	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		os.Remove(badKeyPath)
		os.WriteFile(badKeyPath, []byte(rawKey), fm)
		os.Chmod(badKeyPath, fm)

		badKeyFile := NewSimpleKeyfile(badKeyPath)

		if _, err := badKeyFile.ReadKey(); err == nil {
			t.Fatalf("%o || badKeyFile should return permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		os.Remove(goodKeyPath)
		os.WriteFile(goodKeyPath, []byte(rawKey), fm)
		os.Chmod(goodKeyPath, fm)

		goodKeyFile := NewSimpleKeyfile(goodKeyPath)

		if _, err := goodKeyFile.ReadKey(); err != nil {
			t.Fatalf("%o || goodKeyFile should not return error. Got %v", fm, err)
		}
	}
}

func TestPublicKeyString(t *testing.T) {
	key, _ := GenerateKey()
	pub := key.PublicKey()

	s := pub.String()
	if s[:len(PublicKeyPrefix)] != PublicKeyPrefix {
		t.Fatalf("missing prefix: %s", s)
	}

	parsed, err := ParsePublicKey(s)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !parsed.Equals(pub) {
		t.Fatalf("parsed key does not match")
	}

	for _, bad := range []string{"", "ed25519.", "secp.abc", "ed25519.0OIl", "ed25519.3mJr7AoUXx2Wqd"} {
		if _, err := ParsePublicKey(bad); err == nil {
			t.Fatalf("%q should not parse", bad)
		}
	}
}

func TestSignVerify(t *testing.T) {
	key, _ := GenerateKey()
	msg := []byte("J'aime mieux forger mon ame que la meubler")

	sig := key.Sign(msg)
	if !key.PublicKey().Verify(msg, sig) {
		t.Fatalf("signature should verify")
	}

	sig[0] ^= 0xff
	if key.PublicKey().Verify(msg, sig) {
		t.Fatalf("tampered signature should not verify")
	}
}

func TestSharedSecret(t *testing.T) {
	for i := 0; i < 10; i++ {
		a, _ := GenerateKey()
		b, _ := GenerateKey()

		ab, err := SharedSecret(a, b.PublicKey())
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		ba, err := SharedSecret(b, a.PublicKey())
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		if !bytes.Equal(ab, ba) {
			t.Fatalf("shared secrets differ: %x %x", ab, ba)
		}
	}
}
