package mapview

import (
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/service"
)

// CommandEvent is the browser custom event carrying map commands.
const CommandEvent = "map-command"

// Command is one instruction for the browser map.
type Command struct {
	Seq  uint64 `json:"seq"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// RemoteEngine mirrors engine state locally and forwards every mutation that
// succeeds on the mirror to the browser as a Command. Events posted by the
// browser come back through Dispatch.
type RemoteEngine struct {
	*engine.Memory

	out chan Command
	log zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	nextReq int
	pending map[int]func(float64, error)
}

var _ engine.Engine = (*RemoteEngine)(nil)

// NewRemoteEngine creates an engine whose commands queue on Commands. When
// the queue is full the oldest command is dropped; the browser recovers
// through a Reload.
func NewRemoteEngine(camera engine.Camera, buffer int) *RemoteEngine {
	if buffer <= 0 {
		buffer = 256
	}
	return &RemoteEngine{
		Memory:  engine.NewMemory(camera),
		out:     make(chan Command, buffer),
		log:     logging.Component("remote-engine"),
		pending: make(map[int]func(float64, error)),
	}
}

// Commands is drained by the session's SSE stream.
func (e *RemoteEngine) Commands() <-chan Command { return e.out }

func (e *RemoteEngine) send(op string, args any) {
	e.mu.Lock()
	e.seq++
	cmd := Command{Seq: e.seq, Op: op, Args: args}
	e.mu.Unlock()

	for {
		select {
		case e.out <- cmd:
			return
		default:
		}
		select {
		case dropped := <-e.out:
			e.log.Warn().Uint64("seq", dropped.Seq).Str("op", dropped.Op).Msg("command queue full, dropping oldest")
		default:
		}
	}
}

// Notify sends a host output event to the browser.
func (e *RemoteEngine) Notify(op string, args any) {
	e.send(op, args)
}

func (e *RemoteEngine) SetStyle(url string) {
	e.Memory.SetStyle(url)
	e.mu.Lock()
	stale := e.pending
	e.pending = make(map[int]func(float64, error))
	e.mu.Unlock()
	e.send("setStyle", map[string]any{"url": url})
	for _, cb := range stale {
		cb(0, engine.ErrNotFound)
	}
}

func (e *RemoteEngine) AddSource(id string, src engine.Source) error {
	if err := e.Memory.AddSource(id, src); err != nil {
		return err
	}
	e.send("addSource", map[string]any{"id": id, "source": src})
	return nil
}

func (e *RemoteEngine) RemoveSource(id string) error {
	if err := e.Memory.RemoveSource(id); err != nil {
		return err
	}
	e.send("removeSource", map[string]any{"id": id})
	return nil
}

func (e *RemoteEngine) AddLayer(l engine.Layer) error {
	if err := e.Memory.AddLayer(l); err != nil {
		return err
	}
	e.send("addLayer", map[string]any{"layer": l})
	return nil
}

func (e *RemoteEngine) RemoveLayer(id string) error {
	if err := e.Memory.RemoveLayer(id); err != nil {
		return err
	}
	e.send("removeLayer", map[string]any{"id": id})
	return nil
}

func (e *RemoteEngine) SetLayoutProperty(layer, name string, value any) error {
	if err := e.Memory.SetLayoutProperty(layer, name, value); err != nil {
		return err
	}
	e.send("setLayoutProperty", map[string]any{"layer": layer, "name": name, "value": value})
	return nil
}

func (e *RemoteEngine) LoadImage(id, url, fallback string) {
	e.Memory.LoadImage(id, url, fallback)
	e.send("loadImage", map[string]any{"id": id, "url": url, "fallback": fallback})
}

func (e *RemoteEngine) RemoveImage(id string) error {
	if err := e.Memory.RemoveImage(id); err != nil {
		return err
	}
	e.send("removeImage", map[string]any{"id": id})
	return nil
}

func (e *RemoteEngine) AddControl(c engine.Control) {
	e.Memory.AddControl(c)
	e.send("addControl", c)
}

func (e *RemoteEngine) SetCursor(cursor string) {
	if e.Memory.Cursor() == cursor {
		return
	}
	e.Memory.SetCursor(cursor)
	e.send("setCursor", map[string]any{"cursor": cursor})
}

func (e *RemoteEngine) SetFog(f engine.Fog) {
	e.Memory.SetFog(f)
	e.send("setFog", f)
}

func (e *RemoteEngine) EaseTo(c engine.CameraOptions) {
	e.Memory.EaseTo(c)
	e.send("easeTo", c)
}

func (e *RemoteEngine) FlyTo(c engine.CameraOptions) {
	e.Memory.FlyTo(c)
	e.send("flyTo", c)
}

func (e *RemoteEngine) FitBounds(b orb.Bound, padding int) {
	e.Memory.FitBounds(b, padding)
	e.send("fitBounds", map[string]any{
		"bounds":  [2]orb.Point{b.Min, b.Max},
		"padding": padding,
	})
}

func (e *RemoteEngine) ShowPopup(p engine.Popup) {
	e.Memory.ShowPopup(p)
	e.send("showPopup", p)
}

func (e *RemoteEngine) SetPopupHTML(html string) {
	if _, open := e.Memory.Popup(); !open {
		return
	}
	e.Memory.SetPopupHTML(html)
	e.send("setPopupHTML", map[string]any{"html": html})
}

func (e *RemoteEngine) RemovePopup() {
	if _, open := e.Memory.Popup(); !open {
		return
	}
	e.Memory.RemovePopup()
	e.send("removePopup", nil)
}

// ClusterExpansionZoom asks the browser, whose cluster ids are the ones
// the user clicked. The reply arrives as a cluster.expansion event.
func (e *RemoteEngine) ClusterExpansionZoom(source string, clusterID int, cb func(zoom float64, err error)) {
	e.mu.Lock()
	e.nextReq++
	req := e.nextReq
	e.pending[req] = cb
	e.mu.Unlock()
	e.send("clusterExpansionZoom", map[string]any{"source": source, "clusterId": clusterID, "requestId": req})
}

// Dispatch resolves cluster expansion replies and passes every other event
// to the mirror.
func (e *RemoteEngine) Dispatch(ev engine.Event) {
	if ev.Type != engine.ClusterExpansion {
		e.Memory.Dispatch(ev)
		return
	}
	e.mu.Lock()
	cb, ok := e.pending[ev.RequestID]
	delete(e.pending, ev.RequestID)
	e.mu.Unlock()
	if !ok {
		return
	}
	if ev.Error != "" {
		cb(0, errors.New(ev.Error))
		return
	}
	cb(ev.Zoom, nil)
}

// sessionNotifier forwards host output events to the browser.
type sessionNotifier struct {
	eng *RemoteEngine
}

func (n sessionNotifier) NavigateToDetail(category service.Category, code string) {
	n.eng.Notify("navigate", map[string]any{"url": "/resource/" + string(category) + "/" + code})
}

func (n sessionNotifier) ProfileChanged(p service.Profile) {
	n.eng.Notify("profileChanged", map[string]any{"profile": p})
}
