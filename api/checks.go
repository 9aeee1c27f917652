// Copyright (c) 2025 BVK Chaitanya

package api

import "fmt"

func (r *SessionCreateRequest) Check() error {
	if len(r.UserID) == 0 {
		return fmt.Errorf("user id cannot be empty")
	}
	if len(r.Asset) == 0 {
		return fmt.Errorf("asset address cannot be empty")
	}
	return nil
}

func (r *SessionWithdrawRequest) Check() error {
	if len(r.SessionID) == 0 {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(r.Destination) == 0 {
		return fmt.Errorf("destination address cannot be empty")
	}
	return nil
}

func (r *AdminRecoverRequest) Check() error {
	if len(r.SessionID) == 0 {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(r.Destination) == 0 {
		return fmt.Errorf("destination address cannot be empty")
	}
	return nil
}
