package mapview

import (
	"time"

	"github.com/joeblew999/plat-tour/internal/metrics"
)

// gate defers layer setup until the style has loaded and input has arrived.
// Each arm starts a new generation; checks from older generations are
// ignored. A closed StyleLoaded channel triggers a check immediately; the
// poll is the fallback and stops after maxRetries misses.
type gate struct {
	interval   time.Duration
	maxRetries int

	gen     uint64
	pending bool
	retries int
	timer   *time.Timer
	cancel  chan struct{}
}

// armGate starts a new generation and watches the engine's style-loaded signal.
func (c *Controller) armGate() {
	g := &c.gate
	g.stop()
	g.gen++
	g.pending = true
	g.retries = 0
	g.cancel = make(chan struct{})

	gen, cancel, loaded := g.gen, g.cancel, c.eng.StyleLoaded()
	go func() {
		select {
		case <-loaded:
			c.post(func() { c.checkGate(gen) })
		case <-cancel:
		case <-c.done:
		}
	}()
	c.schedulePoll(gen)
}

func (c *Controller) schedulePoll(gen uint64) {
	c.gate.timer = time.AfterFunc(c.gate.interval, func() {
		c.post(func() { c.pollGate(gen) })
	})
}

func (c *Controller) pollGate(gen uint64) {
	g := &c.gate
	if gen != g.gen || !g.pending {
		return
	}
	if c.checkGate(gen) {
		return
	}
	metrics.ReadinessPolls.Inc()
	g.retries++
	if g.retries >= g.maxRetries {
		c.log.Warn().Int("retries", g.retries).Bool("style_loaded", c.eng.IsStyleLoaded()).
			Bool("has_input", c.hasInput()).Msg("readiness poll gave up; waiting for style load or data")
		return
	}
	c.schedulePoll(gen)
}

// checkGate runs layer setup if the gate for gen is open. It reports whether
// setup ran.
func (c *Controller) checkGate(gen uint64) bool {
	g := &c.gate
	if gen != g.gen || !g.pending {
		return false
	}
	if !c.eng.IsStyleLoaded() || !c.hasInput() {
		return false
	}
	g.pending = false
	g.stop()
	c.setup()
	return true
}

func (g *gate) stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.cancel != nil {
		close(g.cancel)
		g.cancel = nil
	}
}
