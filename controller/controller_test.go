package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"utter/audio"
	"utter/auth"
	"utter/beep"
	"utter/encoder"
	"utter/palette"
	"utter/recognizer"
)

func TestMain(m *testing.M) {
	beep.Disable()
	os.Exit(m.Run())
}

type viewState struct {
	enabled   bool
	recording bool
	text      string
	color     palette.Color
	texts     []string
	alerts    []string
}

type fakeView struct {
	mu sync.Mutex
	st viewState
}

func (v *fakeView) SetControlEnabled(enabled bool) {
	v.mu.Lock()
	v.st.enabled = enabled
	v.mu.Unlock()
}

func (v *fakeView) SetRecording(recording bool) {
	v.mu.Lock()
	v.st.recording = recording
	v.mu.Unlock()
}

func (v *fakeView) SetText(text string) {
	v.mu.Lock()
	v.st.text = text
	v.st.texts = append(v.st.texts, text)
	v.mu.Unlock()
}

func (v *fakeView) SetColor(c palette.Color) {
	v.mu.Lock()
	v.st.color = c
	v.mu.Unlock()
}

func (v *fakeView) Alert(title, message string) {
	v.mu.Lock()
	v.st.alerts = append(v.st.alerts, title+": "+message)
	v.mu.Unlock()
}

func (v *fakeView) snapshot() viewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.st
	st.texts = append([]string(nil), v.st.texts...)
	st.alerts = append([]string(nil), v.st.alerts...)
	return st
}

type harness struct {
	c       *Controller
	view    *fakeView
	rec     *recognizer.Fake
	audio   *audio.FakeContext
	capture *audio.FakeCapture
	cancel  context.CancelFunc
}

type option func(*Config, *harness)

func withStatus(s auth.Status) option {
	return func(cfg *Config, _ *harness) { cfg.Authorizer = auth.Static(s) }
}

func withRecognizer(fn func(*recognizer.Fake) (recognizer.Recognizer, error)) option {
	return func(cfg *Config, h *harness) {
		cfg.Recognizer = func() (recognizer.Recognizer, error) { return fn(h.rec) }
	}
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		view:  &fakeView{},
		rec:   recognizer.NewFake(),
		audio: audio.NewFakeContext(make([]byte, 3200)),
	}
	dev, err := h.audio.NewCapture(nil, audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels})
	if err != nil {
		t.Fatal(err)
	}
	h.capture = dev.(*audio.FakeCapture)

	cfg := Config{
		Authorizer: auth.Static(auth.Authorized),
		Recognizer: func() (recognizer.Recognizer, error) { return h.rec, nil },
		Capture:    h.capture,
		View:       h.view,
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	h.c = New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.c.Done()
	})
	return h
}

func waitFor(t *testing.T, h *harness, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.c.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; snapshot %+v", desc, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, h *harness, st State) Snapshot {
	t.Helper()
	return waitFor(t, h, "state "+st.String(), func(s Snapshot) bool { return s.State == st })
}

func waitAuthorized(t *testing.T, h *harness) {
	t.Helper()
	waitFor(t, h, "authorization", func(s Snapshot) bool { return s.AuthKnown })
}

// record authorizes, toggles and waits for the session's task.
func record(t *testing.T, h *harness) *recognizer.FakeTask {
	t.Helper()
	waitAuthorized(t, h)
	h.c.Toggle()
	waitState(t, h, Recording)
	task := h.rec.Current()
	if task == nil {
		t.Fatal("no recognition task registered")
	}
	return task
}

func TestAuthorizationGate(t *testing.T) {
	for _, st := range []auth.Status{auth.Denied, auth.Restricted, auth.NotDetermined} {
		t.Run(st.String(), func(t *testing.T) {
			h := newHarness(t, withStatus(st))
			waitAuthorized(t, h)

			h.c.Toggle()
			h.c.Toggle()
			time.Sleep(50 * time.Millisecond)

			s := h.c.Snapshot()
			if s.State != Idle {
				t.Errorf("state = %v, want idle", s.State)
			}
			v := h.view.snapshot()
			if v.enabled {
				t.Error("control enabled")
			}
			if v.text != st.Message() {
				t.Errorf("text = %q, want %q", v.text, st.Message())
			}
			if n := len(h.rec.Tasks()); n != 0 {
				t.Errorf("%d tasks registered", n)
			}
			if starts, _ := h.capture.Counts(); starts != 0 {
				t.Errorf("capture started %d times", starts)
			}
		})
	}
}

func TestAuthorizedEnablesControl(t *testing.T) {
	h := newHarness(t)
	waitAuthorized(t, h)
	time.Sleep(10 * time.Millisecond)
	v := h.view.snapshot()
	if !v.enabled {
		t.Error("control disabled after authorization")
	}
	if v.color != palette.Initial {
		t.Errorf("initial colour = %+v", v.color)
	}
}

func TestSayBlue(t *testing.T) {
	h := newHarness(t)
	task := record(t, h)

	if !h.view.snapshot().recording {
		t.Error("button not showing recording")
	}
	if !h.capture.Running() {
		t.Error("capture not running")
	}

	task.Say("blue")
	s := waitFor(t, h, "blue", func(s Snapshot) bool { return s.Color.Name == "blue" })
	if s.Text != "blue" {
		t.Errorf("text = %q", s.Text)
	}
	blue, _ := palette.Classify("blue")
	if v := h.view.snapshot(); v.color != blue || v.text != "blue" {
		t.Errorf("view = %q / %+v", v.text, v.color)
	}

	// Let at least one capture buffer through.
	time.Sleep(150 * time.Millisecond)
	h.c.Toggle()
	waitState(t, h, Idle)
	if h.capture.Running() {
		t.Error("capture still running")
	}
	if starts, stops := h.capture.Counts(); starts != 1 || stops != 1 {
		t.Errorf("capture starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if !task.Finished() {
		t.Error("task not finished")
	}
	if h.view.snapshot().recording {
		t.Error("button still showing recording")
	}
	if task.BytesAppended() == 0 {
		t.Error("no audio reached the task")
	}
}

func TestToggleTwiceReleasesOnce(t *testing.T) {
	h := newHarness(t)
	record(t, h)

	h.c.Toggle()
	waitState(t, h, Idle)
	time.Sleep(20 * time.Millisecond)
	if _, stops := h.capture.Counts(); stops != 1 {
		t.Fatalf("stops = %d, want 1", stops)
	}

	// A toggle from idle starts a new session.
	h.c.Toggle()
	s := waitState(t, h, Recording)
	if s.Session != 2 || s.Recordings != 2 {
		t.Errorf("session/recordings = %d/%d, want 2/2", s.Session, s.Recordings)
	}
	if n := len(h.rec.Tasks()); n != 2 {
		t.Errorf("tasks = %d, want 2", n)
	}
}

func TestAudioEngineStartFailure(t *testing.T) {
	h := newHarness(t)
	h.audio.SetStartError(errors.New("device busy"))
	waitAuthorized(t, h)

	h.c.Toggle()
	s := waitFor(t, h, "alert", func(s Snapshot) bool { return s.LastAlert != "" })
	if s.State != Idle {
		t.Errorf("state = %v, want idle", s.State)
	}
	if s.LastAlert != "There has been an audio engine error." {
		t.Errorf("alert = %q", s.LastAlert)
	}
	if n := len(h.rec.Tasks()); n != 0 {
		t.Errorf("%d tasks registered", n)
	}
	v := h.view.snapshot()
	if v.recording {
		t.Error("button left in recording affordance")
	}
	if len(v.alerts) != 1 || v.alerts[0] != AlertTitle+": There has been an audio engine error." {
		t.Errorf("alerts = %q", v.alerts)
	}
}

func TestRecognizerUnavailable(t *testing.T) {
	h := newHarness(t, withRecognizer(func(*recognizer.Fake) (recognizer.Recognizer, error) {
		return nil, fmt.Errorf("%w: locale xx", recognizer.ErrUnavailable)
	}))
	waitAuthorized(t, h)

	h.c.Toggle()
	s := waitFor(t, h, "alert", func(s Snapshot) bool { return s.LastAlert != "" })
	if s.State != Idle || s.LastAlert != "Speech recognition is not supported for your current locale." {
		t.Errorf("snapshot = %+v", s)
	}
	if starts, _ := h.capture.Counts(); starts != 0 {
		t.Errorf("capture started %d times", starts)
	}
}

func TestRecognizerTemporarilyUnavailable(t *testing.T) {
	h := newHarness(t)
	h.rec.SetAvailable(errors.New("503"))
	waitAuthorized(t, h)

	h.c.Toggle()
	s := waitFor(t, h, "alert", func(s Snapshot) bool { return s.LastAlert != "" })
	if s.State != Idle {
		t.Errorf("state = %v", s.State)
	}
	if s.LastAlert != "Speech recognition is not currently available. Check back at a later time." {
		t.Errorf("alert = %q", s.LastAlert)
	}
	if starts, _ := h.capture.Counts(); starts != 0 {
		t.Errorf("capture started %d times", starts)
	}
	if n := len(h.rec.Tasks()); n != 0 {
		t.Errorf("%d tasks registered", n)
	}
}

func TestRecognitionErrorKeepsRecording(t *testing.T) {
	h := newHarness(t)
	task := record(t, h)

	task.Fail(errors.New("stream dropped"))
	s := waitFor(t, h, "alert", func(s Snapshot) bool { return s.LastAlert != "" })
	if s.LastAlert != "There has been a speech recognition error." {
		t.Errorf("alert = %q", s.LastAlert)
	}
	if s.State != Recording {
		t.Errorf("state = %v, want recording", s.State)
	}
	if !h.capture.Running() {
		t.Error("capture released before the user toggled")
	}

	h.c.Toggle()
	waitState(t, h, Idle)
	if _, stops := h.capture.Counts(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
}

func TestNonMatchKeepsColor(t *testing.T) {
	h := newHarness(t)
	task := record(t, h)

	task.Say("green")
	waitFor(t, h, "green", func(s Snapshot) bool { return s.Color.Name == "green" })

	for _, words := range []string{"maybe", "Blue", "reds"} {
		task.Say(words)
	}
	s := waitFor(t, h, "text", func(s Snapshot) bool { return s.Text == "green maybe Blue reds" })
	if s.Color.Name != "green" {
		t.Errorf("colour = %q, want green", s.Color.Name)
	}
}

func TestOnlyLastSegmentIsClassified(t *testing.T) {
	h := newHarness(t)
	task := record(t, h)

	task.Say("red car")
	waitFor(t, h, "text", func(s Snapshot) bool { return s.Text == "red car" })
	if s := h.c.Snapshot(); s.Color != palette.Initial {
		t.Errorf("colour = %q, want unchanged", s.Color.Name)
	}

	task.Say("now purple")
	waitFor(t, h, "purple", func(s Snapshot) bool { return s.Color.Name == "purple" })
}

type gatedRecognizer struct {
	*recognizer.Fake
	gate chan struct{}
}

func (g gatedRecognizer) Available(ctx context.Context) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Fake.Available(ctx)
}

func TestToggleDuringStarting(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, withRecognizer(func(f *recognizer.Fake) (recognizer.Recognizer, error) {
		return gatedRecognizer{Fake: f, gate: gate}, nil
	}))
	waitAuthorized(t, h)

	h.c.Toggle()
	waitState(t, h, Starting)
	h.c.Toggle()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	s := waitFor(t, h, "session to end", func(s Snapshot) bool { return s.State == Idle && s.Recordings == 1 })
	if s.LastAlert != "" {
		t.Errorf("unexpected alert %q", s.LastAlert)
	}
	if starts, stops := h.capture.Counts(); starts != 1 || stops != 1 {
		t.Errorf("capture starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if task := h.rec.Current(); task == nil || !task.Finished() {
		t.Error("task not finished")
	}
}

func TestShutdownReleasesSession(t *testing.T) {
	h := newHarness(t)
	task := record(t, h)

	h.cancel()
	select {
	case <-h.c.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if h.capture.Running() {
		t.Error("capture still running after shutdown")
	}
	if !task.Finished() {
		t.Error("task not finished on shutdown")
	}
	// Toggle after shutdown must not block.
	h.c.Toggle()
}

func TestStaleUpdatesDropped(t *testing.T) {
	v := &fakeView{}
	c := New(Config{View: v})
	c.gen, c.state = 2, Recording

	c.onUpdate(updateMsg{gen: 1, u: recognizer.Update{Transcription: recognizer.Transcription{
		Text:     "blue",
		Segments: []recognizer.Segment{{Text: "blue"}},
	}}})
	c.onUpdate(updateMsg{gen: 1, u: recognizer.Update{Err: recognizer.ErrRecognition}})

	got := v.snapshot()
	if len(got.texts) != 0 || len(got.alerts) != 0 {
		t.Errorf("stale session reached the view: %+v", got)
	}
}

func TestErrorAfterStopOnlyLogged(t *testing.T) {
	v := &fakeView{}
	c := New(Config{View: v})
	c.gen, c.state = 1, Idle

	c.onUpdate(updateMsg{gen: 1, u: recognizer.Update{Err: recognizer.ErrRecognition}})
	c.onUpdate(updateMsg{gen: 1, u: recognizer.Update{Transcription: recognizer.Transcription{
		Text:     "white",
		Segments: []recognizer.Segment{{Text: "white"}},
		Final:    true,
	}}})

	got := v.snapshot()
	if len(got.alerts) != 0 {
		t.Errorf("alerts = %q", got.alerts)
	}
	if got.color.Name != "white" {
		t.Errorf("final transcript of the stopped session not applied: %+v", got.color)
	}
}

func TestAlertMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: busy", ErrAudioEngineStart), "There has been an audio engine error."},
		{ErrRecognizerUnavailable, "Speech recognition is not supported for your current locale."},
		{fmt.Errorf("x: %w", ErrRecognizerTemporarilyUnavailable), "Speech recognition is not currently available. Check back at a later time."},
		{ErrRecognition, "There has been a speech recognition error."},
		{errors.New("other"), "There has been a speech recognition error."},
	}
	for _, tt := range tests {
		if got := AlertMessage(tt.err); got != tt.want {
			t.Errorf("AlertMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestParseState(t *testing.T) {
	for _, st := range []State{Idle, Starting, Recording} {
		got, err := ParseState(st.String())
		if err != nil || got != st {
			t.Errorf("ParseState(%q) = %v, %v", st.String(), got, err)
		}
	}
	if _, err := ParseState("paused"); err == nil {
		t.Error("expected error for unknown state")
	}
}
