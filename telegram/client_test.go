// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/bvkgo/kv/kvmemdb"
)

var testingSecrets *Secrets

func checkSecrets() bool {
	if testingSecrets != nil {
		return true
	}
	data, err := os.ReadFile("telegram-creds.json")
	if err != nil {
		return false
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return false
	}
	if err := s.Check(); err != nil {
		return false
	}
	testingSecrets = s
	return true
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	if !checkSecrets() {
		t.Skip("no credentials")
		return
	}

	db := kvmemdb.New()
	c, err := New(ctx, db, testingSecrets)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	t.Logf("Authorized on account %s with owner %s", c.BotUserName(), c.OwnerUserName())

	c.SendMessage(ctx, time.Now(), "hello")
}

func TestSenderContext(t *testing.T) {
	ctx := context.Background()
	if s := Sender(ctx); s != "" {
		t.Fatalf("wanted empty sender, got %q", s)
	}
	ctx = withSender(ctx, "alice", 42)
	if s := Sender(ctx); s != "alice" {
		t.Fatalf("wanted alice, got %q", s)
	}
	if id := ChatID(ctx); id != 42 {
		t.Fatalf("wanted chat id 42, got %d", id)
	}
}

func TestPublicAccess(t *testing.T) {
	c := &Client{secrets: &Secrets{OwnerID: "owner", AdminID: "admin"}}
	if c.isValidUser("stranger") {
		t.Fatalf("wanted stranger to be rejected")
	}
	c.secrets.Public = true
	if !c.isValidUser("stranger") {
		t.Fatalf("wanted stranger to be accepted on a public bot")
	}
	if c.isAdmin("stranger") || !c.isAdmin("admin") || !c.isAdmin("owner") {
		t.Fatalf("wanted only the owner and admin to be admins")
	}
}
