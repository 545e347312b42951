// Package controller owns the recording state machine. All state changes
// and every View call happen on the goroutine running Run; authorization
// results, recognition updates and start outcomes arrive as messages.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"utter/audio"
	"utter/auth"
	"utter/beep"
	"utter/log"
	"utter/palette"
	"utter/recognizer"
)

type State int

const (
	Idle State = iota
	Starting
	Recording
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	default:
		return "idle"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range []State{Idle, Starting, Recording} {
		if st.String() == s {
			return st, nil
		}
	}
	return Idle, fmt.Errorf("unknown state %q", s)
}

// View is the user-visible surface: one toggle control, one label, one
// colour panel and a modal alert.
type View interface {
	SetControlEnabled(enabled bool)
	SetRecording(recording bool)
	SetText(text string)
	SetColor(c palette.Color)
	Alert(title, message string)
}

// Config wires a controller to its collaborators. Recognizer is called on
// every start so a missing credential or unsupported locale is reported
// when the user asks to record.
type Config struct {
	Authorizer auth.Authorizer
	Recognizer func() (recognizer.Recognizer, error)
	Capture    audio.CaptureDevice
	View       View

	// AvailabilityTimeout bounds the availability probe and task setup.
	AvailabilityTimeout time.Duration
}

const defaultAvailabilityTimeout = 5 * time.Second

// Snapshot is a copy of the visible state.
type Snapshot struct {
	State      State
	Auth       auth.Status
	AuthKnown  bool
	Text       string
	Color      palette.Color
	Session    uint64
	Recordings int
	LastAlert  string
}

type Controller struct {
	cfg      Config
	msgs     chan any
	outcomes chan any
	done     chan struct{}
	feed     feed

	// Owned by the Run goroutine.
	state       State
	authorized  bool
	pendingStop bool
	gen         uint64
	task        recognizer.Task
	ctx         context.Context

	mu   sync.Mutex
	snap Snapshot
}

type (
	toggleMsg  struct{}
	authMsg    struct{ status auth.Status }
	startedMsg struct {
		gen  uint64
		task recognizer.Task
	}
	startFailedMsg struct {
		gen uint64
		err error
	}
	updateMsg struct {
		gen uint64
		u   recognizer.Update
	}
)

func New(cfg Config) *Controller {
	if cfg.AvailabilityTimeout == 0 {
		cfg.AvailabilityTimeout = defaultAvailabilityTimeout
	}
	return &Controller{
		cfg:      cfg,
		msgs:     make(chan any, 64),
		outcomes: make(chan any),
		done:     make(chan struct{}),
		snap:     Snapshot{Color: palette.Initial},
	}
}

// Toggle asks the controller to start or stop recording. It never blocks
// on the work itself.
func (c *Controller) Toggle() {
	c.post(toggleMsg{})
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) post(m any) bool {
	select {
	case c.msgs <- m:
		return true
	case <-c.done:
		return false
	}
}

// settle delivers a start outcome. The channel is unbuffered so a false
// return means the loop has exited and the caller still owns its resources.
func (c *Controller) settle(m any) bool {
	select {
	case c.outcomes <- m:
		return true
	case <-c.done:
		return false
	}
}

// Run requests authorization once and processes events until ctx is done.
// An active session is released before Run returns.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	c.ctx = ctx

	v := c.cfg.View
	v.SetControlEnabled(false)
	v.SetRecording(false)
	v.SetColor(palette.Initial)

	c.cfg.Authorizer.RequestAuthorization(ctx, func(s auth.Status) {
		c.post(authMsg{s})
	})

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case m := <-c.msgs:
			c.handle(m)
		case m := <-c.outcomes:
			c.handle(m)
		}
	}
}

func (c *Controller) handle(m any) {
	switch m := m.(type) {
	case authMsg:
		c.onAuth(m.status)
	case toggleMsg:
		c.onToggle()
	case startedMsg:
		c.onStarted(m)
	case startFailedMsg:
		c.onStartFailed(m)
	case updateMsg:
		c.onUpdate(m)
	}
}

func (c *Controller) onAuth(s auth.Status) {
	log.Auth(s.String())
	c.mu.Lock()
	c.snap.Auth, c.snap.AuthKnown = s, true
	c.mu.Unlock()

	c.authorized = s == auth.Authorized
	c.cfg.View.SetControlEnabled(c.authorized)
	if !c.authorized {
		c.setText(s.Message())
	}
}

func (c *Controller) onToggle() {
	if !c.authorized {
		log.Warn("toggle ignored: not authorized")
		return
	}
	switch c.state {
	case Idle:
		c.begin()
	case Starting:
		c.pendingStop = !c.pendingStop
	case Recording:
		c.stop()
	}
}

func (c *Controller) transition(to State) {
	log.Transition(c.state.String(), to.String(), c.gen)
	c.state = to
	c.mu.Lock()
	c.snap.State, c.snap.Session = to, c.gen
	c.mu.Unlock()
}

func (c *Controller) begin() {
	c.gen++
	c.pendingStop = false
	c.transition(Starting)
	c.cfg.View.SetRecording(true)
	c.feed.begin()
	go c.start(c.ctx, c.gen)
}

// start runs off the loop. The capture device is not touched by the loop
// while the state is Starting.
func (c *Controller) start(ctx context.Context, gen uint64) {
	fail := func(err error) {
		c.settle(startFailedMsg{gen: gen, err: err})
	}

	rec, err := c.cfg.Recognizer()
	if err != nil {
		if !errors.Is(err, ErrRecognizerUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
		}
		fail(err)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.AvailabilityTimeout)
	defer cancel()
	if err := rec.Available(probeCtx); err != nil {
		if !errors.Is(err, ErrRecognizerTemporarilyUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRecognizerTemporarilyUnavailable, err)
		}
		fail(err)
		return
	}

	capture := c.cfg.Capture
	capture.SetCallback(c.feed.write)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		c.feed.detach()
		fail(fmt.Errorf("%w: %v", ErrAudioEngineStart, err))
		return
	}

	task, err := rec.NewTask(probeCtx)
	if err != nil {
		capture.ClearCallback()
		capture.Stop()
		c.feed.detach()
		if !errors.Is(err, ErrRecognizerTemporarilyUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRecognizerTemporarilyUnavailable, err)
		}
		fail(err)
		return
	}

	if !c.settle(startedMsg{gen: gen, task: task}) {
		task.Cancel()
		capture.ClearCallback()
		capture.Stop()
	}
}

func (c *Controller) onStarted(m startedMsg) {
	if m.gen != c.gen || c.state != Starting {
		m.task.Cancel()
		c.cfg.Capture.ClearCallback()
		c.cfg.Capture.Stop()
		return
	}
	c.task = m.task
	c.feed.attach(m.task)
	go c.forward(m.gen, m.task)

	c.mu.Lock()
	c.snap.Recordings++
	c.mu.Unlock()

	c.transition(Recording)
	beep.PlayStart()

	if c.pendingStop {
		c.pendingStop = false
		c.stop()
	}
}

func (c *Controller) onStartFailed(m startFailedMsg) {
	if m.gen != c.gen {
		return
	}
	c.pendingStop = false
	c.feed.detach()
	c.transition(Idle)
	c.cfg.View.SetRecording(false)
	c.alert(m.err)
}

// forward relays one task's updates into the loop, tagged with its session.
func (c *Controller) forward(gen uint64, task recognizer.Task) {
	for u := range task.Updates() {
		if !c.post(updateMsg{gen: gen, u: u}) {
			return
		}
	}
}

func (c *Controller) onUpdate(m updateMsg) {
	if m.gen != c.gen {
		return
	}
	if err := m.u.Err; err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if c.state != Recording {
			log.Warnf("recognition error after stop: %v", err)
			return
		}
		if !errors.Is(err, ErrRecognition) {
			err = fmt.Errorf("%w: %v", ErrRecognition, err)
		}
		c.alert(err)
		return
	}
	c.apply(m.u.Transcription)
}

// apply shows the best transcript and recolours the panel when the most
// recent segment names a colour. A non-match keeps the current colour.
func (c *Controller) apply(tr recognizer.Transcription) {
	c.setText(tr.Text)

	segs := make([]palette.Segment, len(tr.Segments))
	for i, s := range tr.Segments {
		segs[i] = palette.Segment{Offset: s.Offset}
	}
	last := palette.LastSegment(tr.Text, segs)
	col, ok := palette.Classify(last)
	if !ok {
		return
	}

	c.mu.Lock()
	changed := c.snap.Color != col
	c.snap.Color = col
	c.mu.Unlock()

	c.cfg.View.SetColor(col)
	log.Match(col.Name, last, tr.Final)
	if changed {
		beep.PlayMatch()
	}
}

func (c *Controller) stop() {
	if c.task != nil {
		c.task.Finish()
		c.task = nil
	}
	c.feed.detach()
	c.cfg.Capture.ClearCallback()
	c.cfg.Capture.Stop()

	c.transition(Idle)
	c.cfg.View.SetRecording(false)
	beep.PlayEnd()
}

// shutdown releases an active session. A start still in flight sees done
// closed and releases its own resources.
func (c *Controller) shutdown() {
	if c.state == Recording {
		c.stop()
	}
}

func (c *Controller) alert(err error) {
	msg := AlertMessage(err)
	log.Errorf("%s: %v", msg, err)
	beep.PlayError()

	c.mu.Lock()
	c.snap.LastAlert = msg
	c.mu.Unlock()

	c.cfg.View.Alert(AlertTitle, msg)
}

func (c *Controller) setText(text string) {
	c.mu.Lock()
	c.snap.Text = text
	c.mu.Unlock()
	c.cfg.View.SetText(text)
}
