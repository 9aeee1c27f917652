// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bvk/volumebot/pushover"
	"github.com/bvk/volumebot/telegram"
)

type CustodySecrets struct {
	// Passphrase derives the key that encrypts the wallet keys at rest.
	Passphrase string `json:"passphrase"`
}

type SolanaSecrets struct {
	RPCURL       string `json:"rpc_url"`
	WebsocketURL string `json:"websocket_url"`
	SwapURL      string `json:"swap_url"`
}

type Secrets struct {
	Custody  *CustodySecrets   `json:"custody"`
	Solana   *SolanaSecrets    `json:"solana"`
	Pushover *pushover.Keys    `json:"pushover"`
	Telegram *telegram.Secrets `json:"telegram"`
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyEnv overrides the secrets with the VOLUMEBOT_* environment
// variables. RPC urls often carry api keys, so they are accepted from the
// environment too.
func (v *Secrets) ApplyEnv() {
	if p := strings.TrimSpace(os.Getenv("VOLUMEBOT_CUSTODY_PASSPHRASE")); len(p) != 0 {
		if v.Custody == nil {
			v.Custody = new(CustodySecrets)
		}
		v.Custody.Passphrase = p
	}
	envs := []struct {
		name  string
		field func(*SolanaSecrets) *string
	}{
		{"VOLUMEBOT_SOLANA_RPC_URL", func(s *SolanaSecrets) *string { return &s.RPCURL }},
		{"VOLUMEBOT_SOLANA_WEBSOCKET_URL", func(s *SolanaSecrets) *string { return &s.WebsocketURL }},
		{"VOLUMEBOT_JUPITER_URL", func(s *SolanaSecrets) *string { return &s.SwapURL }},
	}
	for _, e := range envs {
		if u := strings.TrimSpace(os.Getenv(e.name)); len(u) != 0 {
			if v.Solana == nil {
				v.Solana = new(SolanaSecrets)
			}
			*e.field(v.Solana) = u
		}
	}
	if t := strings.TrimSpace(os.Getenv("VOLUMEBOT_TELEGRAM_TOKEN")); len(t) != 0 && v.Telegram != nil {
		v.Telegram.BotToken = t
	}
}

func (v *Secrets) Check() error {
	if v.Custody != nil && len(v.Custody.Passphrase) == 0 {
		return fmt.Errorf("custody passphrase cannot be empty")
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	if v.Pushover != nil {
		if err := v.Pushover.Check(); err != nil {
			return err
		}
	}
	return nil
}
