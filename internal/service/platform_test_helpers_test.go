package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// platformServer serves a fake platform API and points every endpoint of
// the returned config at it.
func platformServer(t *testing.T, mux *http.ServeMux) (*httptest.Server, config.Config) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Endpoints = config.Endpoints{
		GoogleToken:    srv.URL + "/token",
		YoutubeAPI:     srv.URL + "/",
		InstagramOAuth: srv.URL,
		InstagramGraph: srv.URL,
		FacebookGraph:  srv.URL,
		TiktokAPI:      srv.URL,
	}
	cfg.Dispatch.InstagramPolls = 3
	cfg.Dispatch.InstagramPoll = time.Millisecond
	return srv, cfg
}
