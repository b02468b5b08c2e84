package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteRouteSource_FetchRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plan/route", r.URL.Path)
		assert.Equal(t, "cycling", r.URL.Query().Get("profile"))
		assert.Equal(t, "3,1,2", r.URL.Query().Get("stops"))
		w.Write([]byte(`{"routes":[{"distance":1200.5,"duration":300,
			"geometry":{"type":"LineString","coordinates":[[-2.67,42.85],[-2.68,42.84],[-2.7,42.83]]}}]}`))
	}))
	defer srv.Close()

	route, err := NewRemoteRouteSource(srv.URL, UpstreamOptions{}).FetchRoute(context.Background(), []int64{3, 1, 2}, Cycling)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{-2.67, 42.85}, {-2.68, 42.84}, {-2.7, 42.83}}, route.Coordinates)
	assert.InDelta(t, 1200.5, route.Distance, 1e-9)
	assert.InDelta(t, 300, route.Duration, 1e-9)
}

func TestDecodeRoute(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "no routes", body: `{"routes":[]}`, wantErr: ErrNoRoute},
		{name: "missing routes", body: `{}`, wantErr: ErrNoRoute},
		{name: "point geometry", body: `{"routes":[{"geometry":{"type":"Point","coordinates":[1,2]}}]}`, wantErr: ErrNoRoute},
		{name: "single vertex", body: `{"routes":[{"geometry":{"type":"LineString","coordinates":[[1,2]]}}]}`, wantErr: ErrNoRoute},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRoute([]byte(tc.body))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := DecodeRoute([]byte(`not json`))
	assert.Error(t, err)
}

func TestRemoteRouteSource_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewRemoteRouteSource(srv.URL, UpstreamOptions{}).FetchRoute(context.Background(), []int64{1, 2}, Driving)
	assert.ErrorIs(t, err, ErrUpstream)
}
