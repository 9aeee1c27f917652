// Copyright (c) 2023 BVK Chaitanya

package pushover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendAlert(t *testing.T) {
	var got message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got.Token != "app" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"status": 0, "errors": []string{"application token is invalid"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": 1, "request": "x"})
	}))
	defer server.Close()

	c, err := newClient(&Keys{ApplicationKey: "app", UserKey: "user"}, server.URL)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := c.SendAlert(context.Background(), now, "session failed", t.Name()); err != nil {
		t.Fatal(err)
	}
	if got.User != "user" || got.Priority != 1 || got.Title != "session failed" || got.Timestamp != now.Unix() {
		t.Fatalf("unexpected message %#v", got)
	}

	bad, err := newClient(&Keys{ApplicationKey: "bad", UserKey: "user"}, server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.SendMessage(context.Background(), now, t.Name()); err == nil {
		t.Fatalf("wanted an error for invalid application token, got nil")
	}

	if _, err := New(&Keys{UserKey: "user"}); err == nil {
		t.Fatalf("wanted an error for empty application key, got nil")
	}
}
