// Copyright (c) 2023 BVK Chaitanya

// Package pushover sends operator notifications to mobile phones through
// the Pushover service.
package pushover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.pushover.net/1/messages.json"

type Keys struct {
	ApplicationKey string `json:"app_key"`
	UserKey        string `json:"user_key"`
}

func (k *Keys) Check() error {
	if len(k.ApplicationKey) == 0 {
		return fmt.Errorf("pushover application key cannot be empty")
	}
	if len(k.UserKey) == 0 {
		return fmt.Errorf("pushover user key cannot be empty")
	}
	return nil
}

type Client struct {
	keys       Keys
	endpoint   string
	httpClient *http.Client
}

type message struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Priority  int    `json:"priority,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func New(keys *Keys) (*Client, error) {
	return newClient(keys, defaultEndpoint)
}

func newClient(keys *Keys, endpoint string) (*Client, error) {
	if err := keys.Check(); err != nil {
		return nil, err
	}
	c := &Client{
		keys:       *keys,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: time.Minute},
	}
	return c, nil
}

// SendMessage sends a normal priority notification.
func (c *Client) SendMessage(ctx context.Context, at time.Time, msg string) error {
	return c.send(ctx, &message{
		Message:   msg,
		Timestamp: at.Unix(),
	})
}

// SendAlert sends a high priority notification that bypasses the user's
// quiet hours.
func (c *Client) SendAlert(ctx context.Context, at time.Time, title, msg string) error {
	return c.send(ctx, &message{
		Title:     title,
		Message:   msg,
		Priority:  1,
		Timestamp: at.Unix(),
	})
}

func (c *Client) send(ctx context.Context, m *message) error {
	m.Token, m.User = c.keys.ApplicationKey, c.keys.UserKey

	var msgbuf bytes.Buffer
	if err := json.NewEncoder(&msgbuf).Encode(m); err != nil {
		return fmt.Errorf("could not json-encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &msgbuf)
	if err != nil {
		return fmt.Errorf("could not create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not perform post request: %w", err)
	}
	defer resp.Body.Close()

	type Response struct {
		Status  int      `json:"status"`
		Request string   `json:"request"`
		Errors  []string `json:"errors"`
	}
	r := new(Response)
	if err := json.NewDecoder(resp.Body).Decode(r); err != nil {
		return fmt.Errorf("could not json-decode response for http-status %d: %w", resp.StatusCode, err)
	}
	if r.Status != 1 {
		if len(r.Errors) != 0 {
			return fmt.Errorf("send failed with http-status %d and error: %w", resp.StatusCode, errors.New(r.Errors[0]))
		}
		return fmt.Errorf("send failed with http-status %d and zero response-status code (%#v)", resp.StatusCode, *r)
	}
	return nil
}
