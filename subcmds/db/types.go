// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"strings"

	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/session"
)

// KeyTypeName returns the gob type name for the values in a keyspace.
func KeyTypeName(key string) (string, bool) {
	switch {
	case strings.HasPrefix(key, session.SessionsKeyspace):
		return "SessionState", true
	case strings.HasPrefix(key, session.WalletsKeyspace):
		return "SubWalletState", true
	case strings.HasPrefix(key, session.TradesKeyspace):
		return "TradeState", true
	case strings.HasPrefix(key, session.UsersKeyspace):
		return "UserState", true
	case strings.HasPrefix(key, custody.Keyspace):
		return "CustodyKey", true
	case strings.HasPrefix(key, "/telegram/"):
		return "TelegramState", true
	}
	return "", false
}
