package keys

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/mosaicnetworks/nimona/src/common"
)

// KeyReaderWriter reads and writes keys from/to any format or support.
type KeyReaderWriter interface {
	ReadKey() (PrivateKey, error)
	WriteKey(PrivateKey) error
}

// SimpleKeyfile implements KeyReaderWriter with files containing the hex dump
// of the key's seed. When a passphrase is set, the dump is encrypted with age
// and written in its armored form.
type SimpleKeyfile struct {
	l          sync.Mutex
	keyfile    string
	passphrase string
	workFactor int
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	simpleKeyfile := &SimpleKeyfile{
		keyfile: keyfile,
	}

	return simpleKeyfile
}

// NewEncryptedKeyfile instantiates a SimpleKeyfile whose content is protected
// by a passphrase.
func NewEncryptedKeyfile(keyfile string, passphrase string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile:    keyfile,
		passphrase: passphrase,
	}
}

// SetWorkFactor sets the scrypt work factor (log2 of N) used when encrypting.
// Zero keeps the age default.
func (k *SimpleKeyfile) SetWorkFactor(logN int) {
	k.l.Lock()
	defer k.l.Unlock()
	k.workFactor = logN
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	// get file permissions
	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	// get permissions for 'groups' and 'others'
	nonUserPerm := perm & nonUserMask

	if nonUserPerm != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey implements KeyReaderWriter.
func (k *SimpleKeyfile) ReadKey() (PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	if k.passphrase != "" {
		buf, err = k.decrypt(buf)
		if err != nil {
			return nil, err
		}
	}

	seed, err := common.DecodeFromString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return NewPrivateKey(seed)
}

// WriteKey implements KeyReaderWriter.
func (k *SimpleKeyfile) WriteKey(key PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	raw := []byte(common.EncodeToString(key.Seed()))

	if k.passphrase != "" {
		var err error
		raw, err = k.encrypt(raw)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return os.WriteFile(k.keyfile, raw, 0600)
}

func (k *SimpleKeyfile) encrypt(plain []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(k.passphrase)
	if err != nil {
		return nil, err
	}
	if k.workFactor > 0 {
		recipient.SetWorkFactor(k.workFactor)
	}

	var out bytes.Buffer
	armorWriter := armor.NewWriter(&out)

	w, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := armorWriter.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func (k *SimpleKeyfile) decrypt(ciphertext []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(k.passphrase)
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file: %w", err)
	}

	return io.ReadAll(r)
}
