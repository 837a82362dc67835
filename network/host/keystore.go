package host

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

const NodeKeyName = "node.key"

// ReadNodeKey reads the secp256k1 node key from the data directory.
//
// The key must be named 'node.key'
//
// If no key is found, it is generated and written. An empty data directory
// yields an in-memory key.
func ReadNodeKey(dataDir string) (*btcec.PrivateKey, error) {
	if dataDir == "" {
		return btcec.NewPrivateKey()
	}

	path := filepath.Join(dataDir, NodeKeyName)

	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat (%s): %w", path, err)
	}

	if os.IsNotExist(err) {
		key, encoded, err := GenerateAndEncodeNodeKey()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, err
		}

		if err := os.WriteFile(path, encoded, 0600); err != nil {
			return nil, err
		}

		return key, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseNodeKey(raw)
}

// GenerateAndEncodeNodeKey creates a key and its hex file encoding
func GenerateAndEncodeNodeKey() (*btcec.PrivateKey, []byte, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}

	return key, []byte(hex.EncodeToString(key.Serialize())), nil
}

// ParseNodeKey decodes a hex encoded 32 byte scalar
func ParseNodeKey(raw []byte) (*btcec.PrivateKey, error) {
	buf, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}

	if len(buf) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid node key length %d", len(buf))
	}

	key, _ := btcec.PrivKeyFromBytes(buf)

	return key, nil
}
