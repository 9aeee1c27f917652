// Copyright (c) 2025 BVK Chaitanya

package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
)

// StatusCode maps common error values to http status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, os.ErrExist):
		return http.StatusConflict
	case errors.Is(err, os.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// checker is implemented by requests that can validate themselves.
type checker interface {
	Check() error
}

// PostJSONHandler returns a handler that decodes a JSON request body,
// invokes the function and encodes its response as JSON. Errors are
// converted to status codes with the codeFunc, which defaults to StatusCode.
func PostJSONHandler[REQ, RESP any](fn func(context.Context, *REQ) (*RESP, error), codeFunc func(error) int) http.Handler {
	if codeFunc == nil {
		codeFunc = StatusCode
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "only POST method is supported", http.StatusMethodNotAllowed)
			return
		}
		req := new(REQ)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if c, ok := any(req).(checker); ok {
			if err := c.Check(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			slog.Warn("could not handle api request", "path", r.URL.Path, "err", err)
			http.Error(w, err.Error(), codeFunc(err))
			return
		}
		w.Header().Set("content-type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Warn("could not encode api response", "path", r.URL.Path, "err", err)
		}
	})
}
