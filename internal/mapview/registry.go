package mapview

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/metrics"
	"github.com/joeblew999/plat-tour/internal/service"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("map session not found")

// Session is one browser map driven from the server.
type Session struct {
	ID         string
	Controller *Controller
	Engine     *RemoteEngine
	Created    time.Time

	cancel context.CancelFunc
}

// Registry keeps the live map sessions.
type Registry struct {
	deps Deps
	bus  *service.EventBus
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewRegistry creates a registry. deps are shared by every session; the
// notifier of each session forwards to its own browser.
func NewRegistry(deps Deps, bus *service.EventBus) *Registry {
	return &Registry{
		deps:     deps,
		bus:      bus,
		log:      logging.Component("sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create mounts a new map with opts. The session outlives the request that
// created it and ends on Close.
func (r *Registry) Create(opts Options) (*Session, error) {
	opts = opts.withDefaults()
	eng := NewRemoteEngine(engine.Camera{Center: opts.Center, Zoom: opts.Zoom, Pitch: opts.Pitch}, 0)

	deps := r.deps
	deps.Notifier = sessionNotifier{eng: eng}
	ctrl, err := New(eng, opts, deps)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         uuid.New().String(),
		Controller: ctrl,
		Engine:     eng,
		Created:    time.Now(),
		cancel:     cancel,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn().Err(err).Str("session", s.ID).Msg("map session stopped")
		}
	}()

	r.log.Info().Str("session", s.ID).Str("style", string(opts.Style)).Msg("map session created")
	r.publish(service.ActionCreated, s.ID)
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the live sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Close stops a session and forgets it.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.cancel()
	s.Controller.Close()
	metrics.ActiveSessions.Dec()
	r.log.Info().Str("session", id).Msg("map session closed")
	r.publish(service.ActionClosed, id)
	return nil
}

// CloseAll stops every session and waits for their goroutines.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		_ = r.Close(s.ID)
	}
	r.wg.Wait()
}

func (r *Registry) publish(action, id string) {
	if r.bus != nil {
		r.bus.Publish(service.Event{Resource: service.ResourceSessions, Action: action, ID: id})
	}
}
