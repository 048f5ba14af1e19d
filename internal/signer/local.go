package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "COPILOT_PRIVATE_KEY"
	EnvPrivateKeyFile       = "COPILOT_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "COPILOT_KEYSTORE_PATH"
	EnvKeystorePassword     = "COPILOT_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "COPILOT_KEYSTORE_PASSWORD_FILE"
)

// LocalSigner signs with an in-process key loaded from the environment, a
// key file or a go-ethereum keystore. Seed material never leaves this
// package; in particular nothing here is ever written into the AI context.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	source     string
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) Source() string { return s.source }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// NewLocalSignerFromEnv builds a signer from the first configured source,
// in precedence order: raw hex key, key file, keystore.
func NewLocalSignerFromEnv() (*LocalSigner, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvPrivateKey)); raw != "" {
		pk, err := parseHexKey(raw)
		if err != nil {
			return nil, err
		}
		return fromKey(pk, "env-key")
	}
	if path := strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		pk, err := parseHexKey(string(buf))
		if err != nil {
			return nil, err
		}
		return fromKey(pk, "key-file")
	}
	if path := strings.TrimSpace(os.Getenv(EnvKeystorePath)); path != "" {
		pk, err := loadKeystoreKey(path)
		if err != nil {
			return nil, err
		}
		return fromKey(pk, "keystore")
	}
	return nil, fmt.Errorf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

// NewLocalSignerFromHex is used by tests and scripted setups.
func NewLocalSignerFromHex(rawHex string) (*LocalSigner, error) {
	pk, err := parseHexKey(rawHex)
	if err != nil {
		return nil, err
	}
	return fromKey(pk, "env-key")
}

func fromKey(pk *ecdsa.PrivateKey, source string) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{
		privateKey: pk,
		address:    crypto.PubkeyToAddress(*pub),
		source:     source,
	}, nil
}

func loadKeystoreKey(path string) (*ecdsa.PrivateKey, error) {
	password := strings.TrimSpace(os.Getenv(EnvKeystorePassword))
	if password == "" {
		if pwFile := strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)); pwFile != "" {
			buf, err := os.ReadFile(pwFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
	}
	if password == "" {
		return nil, fmt.Errorf("keystore password is required")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}
