// Copyright (c) 2025 BVK Chaitanya

// Package custody generates and holds wallet keys. Private keys are
// encrypted at rest and are only decrypted inside this package to sign a
// payload; callers refer to a wallet by its session id and index.
package custody

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/kvutil"
	"github.com/bvkgo/kv"
	"github.com/gagliardetto/solana-go"

	jose "gopkg.in/square/go-jose.v2"
)

const Keyspace = "/custody/"

// DepositIndex is the wallet index used for a session's deposit wallet.
const DepositIndex = -1

type Custodian struct {
	db kv.Database

	key []byte
}

// New creates a custodian that encrypts keys with a secret derived from the
// passphrase.
func New(db kv.Database, passphrase string) (*Custodian, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("custody passphrase cannot be empty: %w", os.ErrInvalid)
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &Custodian{db: db, key: sum[:]}, nil
}

func keyPath(sid string, index int) string {
	if index == DepositIndex {
		return path.Join(Keyspace, sid, "deposit")
	}
	return path.Join(Keyspace, sid, fmt.Sprintf("%03d", index))
}

// Generate creates the key pair for a wallet and returns its address. Keys
// are generated once; repeated calls return the existing address.
func (c *Custodian) Generate(ctx context.Context, sid string, index int) (string, error) {
	if len(sid) == 0 || index < DepositIndex {
		return "", os.ErrInvalid
	}

	var address string
	generate := func(ctx context.Context, rw kv.ReadWriter) error {
		key := keyPath(sid, index)
		old, err := kvutil.Get[gobs.CustodyKey](ctx, rw, key)
		if err == nil {
			address = old.Address
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		pk, err := solana.NewRandomPrivateKey()
		if err != nil {
			return fmt.Errorf("could not generate private key: %w", err)
		}
		sealed, err := c.seal(pk)
		if err != nil {
			return err
		}
		v := &gobs.CustodyKey{
			SessionID:  sid,
			Index:      index,
			Address:    pk.PublicKey().String(),
			Sealed:     sealed,
			CreateTime: time.Now(),
		}
		if err := kvutil.Set(ctx, rw, key, v); err != nil {
			return fmt.Errorf("could not save wallet key: %w", err)
		}
		address = v.Address
		return nil
	}
	if err := kv.WithReadWriter(ctx, c.db, generate); err != nil {
		return "", fmt.Errorf("could not generate wallet %d for session %q: %w", index, sid, err)
	}
	return address, nil
}

// Address returns the public address of a previously generated wallet.
func (c *Custodian) Address(ctx context.Context, sid string, index int) (string, error) {
	v, err := kvutil.GetDB[gobs.CustodyKey](ctx, c.db, keyPath(sid, index))
	if err != nil {
		return "", err
	}
	return v.Address, nil
}

// Signer returns a signer handle for a previously generated wallet.
func (c *Custodian) Signer(ctx context.Context, sid string, index int) (*Signer, error) {
	address, err := c.Address(ctx, sid, index)
	if err != nil {
		return nil, fmt.Errorf("could not load wallet %d of session %q: %w", index, sid, err)
	}
	return &Signer{c: c, sid: sid, index: index, address: address}, nil
}

// Sign returns the 64 byte ed25519 signature for the payload.
func (c *Custodian) Sign(ctx context.Context, sid string, index int, payload []byte) ([]byte, error) {
	v, err := kvutil.GetDB[gobs.CustodyKey](ctx, c.db, keyPath(sid, index))
	if err != nil {
		return nil, err
	}
	pk, err := c.unseal(v.Sealed)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt key for wallet %d of session %q: %w", index, sid, err)
	}
	if pk.PublicKey().String() != v.Address {
		return nil, fmt.Errorf("decrypted key does not match wallet address %s", v.Address)
	}
	sig, err := pk.Sign(payload)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

func (c *Custodian) seal(pk solana.PrivateKey) (string, error) {
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: c.key}, nil)
	if err != nil {
		return "", fmt.Errorf("could not create encrypter: %w", err)
	}
	obj, err := enc.Encrypt([]byte(pk))
	if err != nil {
		return "", fmt.Errorf("could not encrypt private key: %w", err)
	}
	return obj.CompactSerialize()
}

func (c *Custodian) unseal(sealed string) (solana.PrivateKey, error) {
	obj, err := jose.ParseEncrypted(sealed)
	if err != nil {
		return nil, err
	}
	data, err := obj.Decrypt(c.key)
	if err != nil {
		return nil, err
	}
	return solana.PrivateKey(data), nil
}

// Signer signs payloads for one wallet without holding its key.
type Signer struct {
	c *Custodian

	sid     string
	index   int
	address string
}

func (s *Signer) Address() string {
	return s.address
}

func (s *Signer) Index() int {
	return s.index
}

func (s *Signer) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	return s.c.Sign(ctx, s.sid, s.index, payload)
}
