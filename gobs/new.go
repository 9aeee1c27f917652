// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"fmt"
)

func NewByTypename(typename string) (any, error) {
	var v any
	switch typename {
	case "KeyValue":
		v = new(KeyValue)
	case "TelegramState":
		v = new(TelegramState)
	case "UserState":
		v = new(UserState)
	case "SessionState":
		v = new(SessionState)
	case "SubWalletState":
		v = new(SubWalletState)
	case "TradeState":
		v = new(TradeState)
	case "CustodyKey":
		v = new(CustodyKey)
	default:
		return nil, fmt.Errorf("unsupported typename %q", typename)
	}
	return v, nil
}
