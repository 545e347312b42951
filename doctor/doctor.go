package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"utter/audio"
	"utter/auth"
	"utter/encoder"
	"utter/hotkey"
	"utter/palette"
	"utter/recognizer"
)

// Deps is what the checks run against. Hotkey may be nil to skip that
// check; Speak enables the interactive colour round trip.
type Deps struct {
	Authorizer auth.Authorizer
	Recognizer func() (recognizer.Recognizer, error)
	Audio      audio.Context
	Device     *audio.DeviceInfo
	Hotkey     hotkey.Hotkey
	Binding    hotkey.Binding
	Out        io.Writer

	ProbeDuration time.Duration
	SpeakDuration time.Duration
	Speak         bool
	Timeout       time.Duration
}

type check struct {
	name string
	run  func(d *Deps) error
}

// Run executes the diagnostic checks in order and returns an exit code
// (0 = all pass, 1 = any fail). Checks after the first failure are skipped.
func Run(d Deps) int {
	if d.ProbeDuration == 0 {
		d.ProbeDuration = time.Second
	}
	if d.SpeakDuration == 0 {
		d.SpeakDuration = 3 * time.Second
	}
	if d.Timeout == 0 {
		d.Timeout = 10 * time.Second
	}

	checks := []check{
		{"Speech recognition authorization", checkAuthorization},
		{"Recognizer availability", checkRecognizer},
		{"Microphone capture", checkCapture},
	}
	if d.Speak {
		checks = append(checks, check{"Colour recognition", checkColour})
	}
	if d.Hotkey != nil {
		checks = append(checks, check{"Global hotkey", checkHotkey})
	}

	fmt.Fprintln(d.Out, "utter doctor - system diagnostics")
	fmt.Fprintln(d.Out, "=================================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintf(d.Out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if err := c.run(&d); err != nil {
			fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
			allPass = false
			break
		}
	}

	fmt.Fprintln(d.Out)
	if allPass {
		fmt.Fprintln(d.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(d.Out, "Some checks failed. See details above.")
	return 1
}

func checkAuthorization(d *Deps) error {
	ch := make(chan auth.Status, 1)
	d.Authorizer.RequestAuthorization(context.Background(), func(s auth.Status) { ch <- s })
	select {
	case s := <-ch:
		if s != auth.Authorized {
			return errors.New(s.Message())
		}
		fmt.Fprintln(d.Out, "  PASS: authorized")
		return nil
	case <-time.After(d.Timeout):
		return errors.New("authorization did not resolve")
	}
}

func checkRecognizer(d *Deps) error {
	rec, err := d.Recognizer()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	if err := rec.Available(ctx); err != nil {
		return err
	}
	fmt.Fprintf(d.Out, "  PASS: %s (%s) reachable\n", rec.Name(), localeLabel(rec.Locale()))
	return nil
}

func localeLabel(l string) string {
	if l == "" {
		return "auto"
	}
	return l
}

func checkCapture(d *Deps) error {
	pcm, err := capture(d, d.ProbeDuration)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return errors.New("no audio captured")
	}
	fmt.Fprintf(d.Out, "  PASS: %.1f KB captured, level %.3f\n", float64(len(pcm))/1024, rms(pcm))
	return nil
}

func checkColour(d *Deps) error {
	rec, err := d.Recognizer()
	if err != nil {
		return err
	}
	fmt.Fprintf(d.Out, "  Say one of: %s\n", strings.Join(palette.Names(), ", "))
	pcm, err := capture(d, d.SpeakDuration)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	task, err := rec.NewTask(ctx)
	if err != nil {
		return err
	}
	task.Append(pcm)
	task.Finish()

	var final recognizer.Transcription
	for {
		select {
		case u, ok := <-task.Updates():
			if !ok {
				return report(d, final)
			}
			if u.Err != nil {
				return u.Err
			}
			final = u.Transcription
		case <-ctx.Done():
			task.Cancel()
			return errors.New("recognition timed out")
		}
	}
}

func report(d *Deps, tr recognizer.Transcription) error {
	segs := make([]palette.Segment, len(tr.Segments))
	for i, s := range tr.Segments {
		segs[i] = palette.Segment{Offset: s.Offset}
	}
	last := palette.LastSegment(tr.Text, segs)
	fmt.Fprintf(d.Out, "  Heard: %q (last segment %q)\n", tr.Text, last)
	c, ok := palette.Classify(last)
	if !ok {
		return fmt.Errorf("%q is not a colour name", last)
	}
	fmt.Fprintf(d.Out, "  PASS: matched %s\n", c.Name)
	return nil
}

func checkHotkey(d *Deps) error {
	if err := d.Hotkey.Register(); err != nil {
		return fmt.Errorf("could not register hotkey: %w", err)
	}
	defer d.Hotkey.Unregister()

	fmt.Fprintf(d.Out, "  Press %s...\n", d.Binding)
	select {
	case <-d.Hotkey.Keydown():
		fmt.Fprintln(d.Out, "  PASS: hotkey detected")
		select {
		case <-d.Hotkey.Keyup():
		case <-time.After(5 * time.Second):
		}
		// The chord may leave the terminal in raw mode.
		resetTerminal()
		return nil
	case <-time.After(d.Timeout):
		return errors.New("timeout waiting for hotkey")
	}
}

func capture(d *Deps, dur time.Duration) ([]byte, error) {
	dev, err := d.Audio.NewCapture(d.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	var mu sync.Mutex
	var pcm []byte
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		return nil, fmt.Errorf("capture start: %w", err)
	}
	fmt.Fprintf(d.Out, "  Recording from %s for %s\n", dev.DeviceName(), dur)
	time.Sleep(dur)
	dev.Stop()
	dev.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	return pcm, nil
}

func rms(pcm []byte) float64 {
	samples := encoder.Samples(pcm)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
