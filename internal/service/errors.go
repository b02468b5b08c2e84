package service

import "errors"

var (
	// ErrNoRoute is returned when the router finds no path for the stops.
	ErrNoRoute = errors.New("no route found")
	// ErrUpstream wraps transport failures, 5xx responses and open breakers.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrCacheMiss is returned by Cache.Get for an absent key.
	ErrCacheMiss = errors.New("cache miss")
)
