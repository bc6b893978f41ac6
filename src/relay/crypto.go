package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

// KeySize is the size of the symmetric keys protecting envelopes.
const KeySize = chacha20poly1305.KeySize

// BlobVersion is the first byte of every encrypted payload. It is also the
// additional authenticated data, so changing it breaks authentication.
const BlobVersion byte = 0x01

// BlobOverhead is version + nonce + tag.
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var hkdfInfo = []byte("nimona.relay.v1")

// DeriveSharedKey derives the key shared by the owners of priv and peer.
// DeriveSharedKey(a, B) == DeriveSharedKey(b, A).
func DeriveSharedKey(priv keys.PrivateKey, peer keys.PublicKey) ([]byte, error) {
	secret, err := keys.SharedSecret(priv, peer)
	if err != nil {
		return nil, err
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("deriving relay key: %w", err)
	}

	return key, nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext + tag]
func Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), BlobOverhead+len(plaintext))
	out[0] = BlobVersion
	copy(out[1:], nonce[:])

	return aead.Seal(out, nonce[:], plaintext, []byte{BlobVersion}), nil
}

// Decrypt opens a blob produced by Encrypt. All failures wrap ErrDecrypt.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrDecrypt, len(blob), BlobOverhead)
	}

	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecrypt, blob[0])
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}
