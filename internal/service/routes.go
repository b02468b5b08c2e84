package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteSource computes a path through ordered stops.
type RouteSource interface {
	FetchRoute(ctx context.Context, stopIDs []int64, profile Profile) (Route, error)
}

// RemoteRouteSource queries a directions-style routing endpoint at
// {base}/plan/route?profile=&stops=.
type RemoteRouteSource struct {
	up *upstream
}

// NewRemoteRouteSource creates a client for the routing service.
func NewRemoteRouteSource(baseURL string, opts UpstreamOptions) *RemoteRouteSource {
	return &RemoteRouteSource{up: newUpstream("routes", baseURL, opts)}
}

type directionsResponse struct {
	Routes []struct {
		Geometry geojson.Geometry `json:"geometry"`
		Distance float64          `json:"distance"`
		Duration float64          `json:"duration"`
	} `json:"routes"`
}

// FetchRoute returns the first route. An empty route list or a non-line
// geometry is ErrNoRoute.
func (s *RemoteRouteSource) FetchRoute(ctx context.Context, stopIDs []int64, profile Profile) (Route, error) {
	ids := make([]string, len(stopIDs))
	for i, id := range stopIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("profile", string(profile))
	q.Set("stops", strings.Join(ids, ","))

	body, err := s.up.get(ctx, "/plan/route", q)
	if err != nil {
		return Route{}, err
	}
	return DecodeRoute(body)
}

// DecodeRoute parses a directions response body.
func DecodeRoute(body []byte) (Route, error) {
	var resp directionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Route{}, fmt.Errorf("decode route: %w", err)
	}
	if len(resp.Routes) == 0 {
		return Route{}, ErrNoRoute
	}
	first := resp.Routes[0]
	line, ok := first.Geometry.Coordinates.(orb.LineString)
	if !ok || len(line) < 2 {
		return Route{}, ErrNoRoute
	}
	return Route{Coordinates: line, Distance: first.Distance, Duration: first.Duration}, nil
}

// BreakerState reports the circuit breaker state.
func (s *RemoteRouteSource) BreakerState() string {
	return s.up.State()
}
