// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/httputil"
)

func TestPort(t *testing.T) {
	t.Setenv("VOLUMEBOT_SERVER_PORT", "45000")

	var cf ClientFlags
	if v := cf.Port(); v != 45000 {
		t.Fatalf("wanted port 45000 from the environment, got %d", v)
	}
	cf.port = 12345
	if v := cf.Port(); v != 12345 {
		t.Fatalf("wanted port from the flag, got %d", v)
	}

	t.Setenv("VOLUMEBOT_SERVER_PORT", "notaport")
	if v := new(ClientFlags).Port(); v != 10000 {
		t.Fatalf("wanted default port 10000, got %d", v)
	}
}

func TestPost(t *testing.T) {
	ctx := context.Background()

	list := func(ctx context.Context, req *api.SessionListRequest) (*api.SessionListResponse, error) {
		resp := &api.SessionListResponse{
			Sessions: []*api.SessionItem{{SessionID: "s1", UserID: req.UserID}},
		}
		return resp, nil
	}
	mux := http.NewServeMux()
	mux.Handle(api.SessionListPath, httputil.PostJSONHandler(list, httputil.StatusCode))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	cf := &ClientFlags{port: port, Host: host, APIPath: "/"}
	resp, err := Post[api.SessionListResponse](ctx, cf, api.SessionListPath, &api.SessionListRequest{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].UserID != "alice" {
		t.Fatalf("wanted one session for alice, got %#v", resp.Sessions)
	}

	if _, err := Post[api.SessionListResponse](ctx, cf, "/volumebot/missing", &api.SessionListRequest{}); err == nil {
		t.Fatalf("wanted non-nil error for a missing handler")
	}
}
