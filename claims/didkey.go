package claims

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const didKeyPrefix = "did:key:z"

// ed25519 public key multicodec prefix.
var ed25519Codec = []byte{0xed, 0x01}

// EncodeDIDKey encodes an ed25519 public key as a did:key identifier.
func EncodeDIDKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(ed25519Codec)+len(pub))
	buf = append(buf, ed25519Codec...)
	buf = append(buf, pub...)
	return didKeyPrefix + base58.Encode(buf)
}

// DecodeDIDKey extracts the ed25519 public key from a did:key identifier.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	enc, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDIDKey, did)
	}
	raw, err := base58.Decode(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDIDKey, err)
	}
	if len(raw) != len(ed25519Codec)+ed25519.PublicKeySize ||
		raw[0] != ed25519Codec[0] || raw[1] != ed25519Codec[1] {
		return nil, fmt.Errorf("%w: not an ed25519 key", ErrInvalidDIDKey)
	}
	return ed25519.PublicKey(raw[len(ed25519Codec):]), nil
}

// ClientID returns the stable client identity of a did:key: the lowercase
// hex encoding of its public key.
func ClientID(did string) (string, error) {
	pub, err := DecodeDIDKey(did)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}
