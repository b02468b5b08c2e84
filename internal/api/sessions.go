package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/humastar"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/mapview"
	"github.com/joeblew999/plat-tour/internal/service"
)

const sessionsPath = "/api/v1/map/sessions"

// MapHandler serves the server-driven map sessions. The browser holds one
// SSE stream per session for map commands and posts its map events back.
type MapHandler struct {
	svc *Services
	log zerolog.Logger
}

func NewMapHandler(svc *Services) *MapHandler {
	return &MapHandler{svc: svc, log: logging.Component("api")}
}

func (h *MapHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("map")
	huma.Post(api, sessionsPath, h.CreateSession, tags)
	huma.Get(api, sessionsPath, h.ListSessions, tags)
	huma.Get(api, sessionsPath+"/{id}", h.GetSession, tags)
	huma.Delete(api, sessionsPath+"/{id}", h.DeleteSession, tags)
	huma.Get(api, sessionsPath+"/{id}/stream", h.StreamSession, tags)
	huma.Post(api, sessionsPath+"/{id}/events", h.PostEvent, tags)
	huma.Post(api, sessionsPath+"/{id}/query", h.Query, tags)
	huma.Post(api, sessionsPath+"/{id}/stops", h.PutStops, tags)
	huma.Post(api, sessionsPath+"/{id}/stops/move", h.MoveStop, tags)
	huma.Post(api, sessionsPath+"/{id}/profile", h.SetProfile, tags)
	huma.Post(api, sessionsPath+"/{id}/style", h.ToggleStyle, tags)
	huma.Post(api, sessionsPath+"/{id}/reload", h.Reload, tags)
	huma.Get(api, "/api/v1/map/events", h.StreamLifecycle, tags)
}

// Types

type SessionInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

type CreateSessionBody struct {
	Plan          bool   `json:"plan,omitempty" doc:"Itinerary map with the navigation styles"`
	PreferenceKey string `json:"preferenceKey,omitempty" doc:"Key used to restore and persist style and camera"`
	Category      string `json:"category,omitempty" doc:"Category whose marker icon is shown" example:"museum"`
	Profile       string `json:"profile,omitempty" enum:"driving,cycling,walking" doc:"Initial travel profile"`
}

// SessionBody describes a live map session.
type SessionBody struct {
	ID       string            `json:"id" doc:"Session ID"`
	Style    service.StyleMode `json:"style" doc:"Style mode at creation"`
	Center   orb.Point         `json:"center" doc:"Initial camera center as [lon, lat]"`
	Zoom     float64           `json:"zoom" doc:"Initial camera zoom"`
	Pitch    float64           `json:"pitch,omitempty" doc:"Initial camera pitch in degrees"`
	Category service.Category  `json:"category,omitempty" doc:"Marker icon category"`
	Created  time.Time         `json:"created" doc:"Creation time"`

	AccessToken string `json:"accessToken,omitempty" doc:"Mapbox access token for the browser map"`
}

// Actions lists the follow-up requests available for the session.
func (b SessionBody) Actions() []humastar.Action {
	base := sessionsPath + "/" + b.ID
	return []humastar.Action{
		{Rel: "stream", Href: base + "/stream", Method: "GET"},
		{Rel: "events", Href: base + "/events", Method: "POST"},
		{Rel: "close", Href: base, Method: "DELETE"},
	}
}

type SessionOutput struct {
	Body SessionBody
}

type SnapshotOutput struct {
	Body mapview.Snapshot
}

type QueryBody struct {
	Category     string `json:"category" doc:"Resource category" example:"museum"`
	Province     string `json:"provincia,omitempty" doc:"Province filter"`
	Municipality string `json:"municipio,omitempty" doc:"Municipality filter"`
	Subtype      string `json:"subtipo,omitempty" doc:"Subtype filter"`
	Q            string `json:"q,omitempty" doc:"Name search"`
}

type QueryResultBody struct {
	Records int `json:"records" doc:"Records returned by the query"`
}

type StopsBody struct {
	Stops []service.Stop `json:"stops" doc:"Itinerary in order"`
}

type MoveStopBody struct {
	From int `json:"from" minimum:"0" doc:"Current position"`
	To   int `json:"to" minimum:"0" doc:"New position"`
}

type ProfileBody struct {
	Profile string `json:"profile" enum:"driving,cycling,walking" doc:"Travel profile"`
}

type StyleBody struct {
	Style service.StyleMode `json:"style" doc:"Style mode after the toggle"`
}

// Handlers

func (h *MapHandler) session(id string) (*mapview.Session, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("map sessions not available")
	}
	s, err := h.svc.Sessions.Get(id)
	if errors.Is(err, mapview.ErrSessionNotFound) {
		return nil, huma.Error404NotFound("map session not found")
	}
	return s, err
}

func sessionBody(s *mapview.Session, opts mapview.Options, token string) SessionBody {
	return SessionBody{
		ID:          s.ID,
		Style:       opts.Style,
		Center:      opts.Center,
		Zoom:        opts.Zoom,
		Pitch:       opts.Pitch,
		Category:    opts.Category,
		Created:     s.Created,
		AccessToken: token,
	}
}

func (h *MapHandler) CreateSession(ctx context.Context, input *struct{ Body CreateSessionBody }) (*SessionOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("map sessions not available")
	}
	in := input.Body
	opts := mapview.OptionsFromConfig(h.svc.Map, in.Plan)

	if in.Category != "" {
		cat, err := service.ParseCategory(in.Category)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		opts.Category = cat
	}
	if in.Profile != "" {
		p, err := service.ParseProfile(in.Profile)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		opts.Profile = p
	}
	if in.PreferenceKey != "" && h.svc.Prefs != nil {
		prefs, err := h.svc.Prefs.Load(in.PreferenceKey)
		if err != nil {
			h.log.Warn().Err(err).Str("key", in.PreferenceKey).Msg("view preferences not loaded")
		} else {
			opts = opts.WithPreferences(prefs)
		}
		opts.PreferenceKey = in.PreferenceKey
	}

	s, err := h.svc.Sessions.Create(opts)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create map session", err)
	}
	return &SessionOutput{Body: sessionBody(s, opts, h.svc.Map.AccessToken)}, nil
}

func (h *MapHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body []string }, error) {
	ids := []string{}
	if h.svc != nil && h.svc.Sessions != nil {
		for _, s := range h.svc.Sessions.List() {
			ids = append(ids, s.ID)
		}
	}
	return &struct{ Body []string }{Body: ids}, nil
}

func (h *MapHandler) GetSession(ctx context.Context, input *SessionInput) (*SnapshotOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Controller.Snapshot(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &SnapshotOutput{Body: snap}, nil
}

func (h *MapHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("map sessions not available")
	}
	if err := h.svc.Sessions.Close(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Map session closed"}}, nil
}

type StreamInput struct {
	SessionInput
	Reload bool `query:"reload" doc:"Rebuild the map first, for a reconnecting browser"`
}

// StreamSession drains the session's map commands into the SSE stream as
// map-command events until the browser disconnects or the session closes.
func (h *MapHandler) StreamSession(ctx context.Context, input *StreamInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if input.Reload {
		s.Controller.Reload()
	}
	return humastar.Stream(func(sse humastar.SSE) {
		cmds := s.Engine.Commands()
		for {
			select {
			case <-sse.Context().Done():
				return
			case <-s.Controller.Done():
				sse.Event(mapview.CommandEvent, mapview.Command{Op: "closed"})
				return
			case cmd := <-cmds:
				sse.Event(mapview.CommandEvent, cmd)
			}
		}
	}), nil
}

// PostEvent dispatches a browser map event into the session. The body is
// decoded by hand because browser events carry arbitrary feature payloads.
func (h *MapHandler) PostEvent(ctx context.Context, input *struct {
	SessionInput
	RawBody []byte
}) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var ev engine.Event
	if err := json.Unmarshal(input.RawBody, &ev); err != nil {
		return nil, huma.Error400BadRequest("invalid map event: " + err.Error())
	}
	if ev.Type == "" {
		return nil, huma.Error422UnprocessableEntity("map event type is required")
	}
	s.Controller.HandleEvent(ev)
	return nil, nil
}

// Query runs a resource query for the session and hands the result to its map.
func (h *MapHandler) Query(ctx context.Context, input *struct {
	SessionInput
	Body QueryBody
}) (*struct{ Body QueryResultBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if h.svc.Points == nil {
		return nil, huma.Error503ServiceUnavailable("resource query service not available")
	}
	q := input.Body
	cat, err := service.ParseCategory(q.Category)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	filters := PointsInput{Province: q.Province, Municipality: q.Municipality, Subtype: q.Subtype, Q: q.Q}.filters()

	seq := s.Controller.BeginQuery()
	records, err := h.svc.Points.FetchPoints(ctx, cat, filters)
	if err != nil {
		s.Controller.FailQuery(seq)
		return nil, upstreamError(err)
	}
	s.Controller.FinishQuery(seq, cat, records)
	return &struct{ Body QueryResultBody }{Body: QueryResultBody{Records: len(records)}}, nil
}

func (h *MapHandler) PutStops(ctx context.Context, input *struct {
	SessionInput
	Body StopsBody
}) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	s.Controller.SetStops(input.Body.Stops)
	return nil, nil
}

func (h *MapHandler) MoveStop(ctx context.Context, input *struct {
	SessionInput
	Body MoveStopBody
}) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	s.Controller.MoveStop(input.Body.From, input.Body.To)
	return nil, nil
}

func (h *MapHandler) SetProfile(ctx context.Context, input *struct {
	SessionInput
	Body ProfileBody
}) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	p, err := service.ParseProfile(input.Body.Profile)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	s.Controller.SetProfile(p)
	return nil, nil
}

func (h *MapHandler) ToggleStyle(ctx context.Context, input *SessionInput) (*struct{ Body StyleBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	s.Controller.ToggleStyle()
	snap, err := s.Controller.Snapshot(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body StyleBody }{Body: StyleBody{Style: snap.Style}}, nil
}

func (h *MapHandler) Reload(ctx context.Context, input *SessionInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	s.Controller.Reload()
	return nil, nil
}

// StreamLifecycle streams session and preference change events as
// resource-changed custom events.
func (h *MapHandler) StreamLifecycle(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	if h.svc == nil || h.svc.Bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	return humastar.Stream(func(sse humastar.SSE) {
		events := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(events)
		for {
			select {
			case <-sse.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				sse.Event("resource-changed", map[string]any{
					"resource": ev.Resource, "action": ev.Action, "id": ev.ID,
				})
			}
		}
	}), nil
}

func sessionError(err error) error {
	if errors.Is(err, mapview.ErrClosed) {
		return huma.Error410Gone("map session closed")
	}
	return huma.Error500InternalServerError("map session failed", err)
}
