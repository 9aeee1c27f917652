// Copyright (c) 2025 BVK Chaitanya

package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

type echoRequest struct {
	Text string
}

func (r *echoRequest) Check() error {
	if len(r.Text) == 0 {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}

type echoResponse struct {
	Text string
}

func echo(ctx context.Context, req *echoRequest) (*echoResponse, error) {
	if req.Text == "missing" {
		return nil, fmt.Errorf("no such text: %w", os.ErrNotExist)
	}
	return &echoResponse{Text: strings.ToUpper(req.Text)}, nil
}

func TestPostJSONHandler(t *testing.T) {
	h := PostJSONHandler(echo, nil)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
		h.ServeHTTP(w, r)
		return w
	}

	w := post(`{"Text":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("wanted 200, got %d", w.Code)
	}
	resp := new(echoResponse)
	if err := json.NewDecoder(w.Body).Decode(resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "HELLO" {
		t.Fatalf("wanted HELLO, got %q", resp.Text)
	}

	if w := post(`{"Text":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("wanted 400 for invalid request, got %d", w.Code)
	}
	if w := post(`{bad json`); w.Code != http.StatusBadRequest {
		t.Fatalf("wanted 400 for bad json, got %d", w.Code)
	}
	if w := post(`{"Text":"missing"}`); w.Code != http.StatusNotFound {
		t.Fatalf("wanted 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/echo", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wanted 405, got %d", w.Code)
	}
}

func TestHandlers(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.AddHandler("/echo", PostJSONHandler(echo, nil))
	if !s.RemoveHandler("/echo") {
		t.Fatalf("wanted handler to be removed")
	}
	if s.RemoveHandler("/echo") {
		t.Fatalf("wanted false for a missing handler")
	}
}
