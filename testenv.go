package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"utter/audio"
	"utter/auth"
	"utter/beep"
	"utter/controller"
	"utter/encoder"
	"utter/hotkey"
	"utter/log"
	"utter/recognizer"
)

const waitTimeout = 5 * time.Second

type testOptions struct {
	wav        string
	auth       string
	recognizer func() (recognizer.Recognizer, error)
}

// runTestMode drives the controller from stdin with fake audio, a fake
// hotkey and, unless another provider was chosen, the scripted recognizer.
// View calls are printed to stdout as EVENT lines.
func runTestMode(o testOptions) int {
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	status, err := auth.ParseStatus(o.auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	fakeCtx := audio.NewFakeContext(nil)
	if o.wav != "" {
		fakeCtx, err = audio.NewFakeContextFromWAV(o.wav)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			return 1
		}
	}
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: encoder.SampleRate, Channels: encoder.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		return 1
	}
	defer capture.Close()

	name := "unavailable"
	if rec, err := o.recognizer(); err == nil {
		name = rec.Name()
	}
	log.SessionStart(name, "", capture.DeviceName())

	ctrl := controller.New(controller.Config{
		Authorizer: auth.Static(status),
		Recognizer: o.recognizer,
		Capture:    capture,
		View:       newEventView(os.Stdout),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hk := hotkey.NewFake()
	go func() {
		for range hotkey.Toggles(ctx, hk, 0) {
			ctrl.Toggle()
		}
	}()
	go ctrl.Run(ctx)

	d := &driver{ctrl: ctrl, hk: hk, recognizer: o.recognizer, out: os.Stdout}
	code := d.run(os.Stdin)

	cancel()
	<-ctrl.Done()
	log.SessionEnd(ctrl.Snapshot().Recordings)
	return code
}

// driver executes one stdin command per line.
type driver struct {
	ctrl       *controller.Controller
	hk         *hotkey.FakeHotkey
	recognizer func() (recognizer.Recognizer, error)
	out        io.Writer
}

func (d *driver) run(in io.Reader) int {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "TOGGLE":
			d.ctrl.Toggle()
		case "KEYDOWN":
			d.hk.SimKeydown()
		case "KEYUP":
			d.hk.SimKeyup()
		case "SAY":
			if err := d.say(arg); err != nil {
				fmt.Fprintf(d.out, "ERROR %v\n", err)
			}
		case "FAIL":
			if err := d.fail(arg); err != nil {
				fmt.Fprintf(d.out, "ERROR %v\n", err)
			}
		case "WAIT":
			if err := d.wait(arg); err != nil {
				fmt.Fprintf(d.out, "ERROR %v\n", err)
				return 1
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return 0
		default:
			fmt.Fprintf(d.out, "ERROR unknown command %q\n", cmd)
		}
	}
	return 0
}

func (d *driver) currentTask() (*recognizer.FakeTask, error) {
	rec, err := d.recognizer()
	if err != nil {
		return nil, err
	}
	fake, ok := rec.(*recognizer.Fake)
	if !ok {
		return nil, fmt.Errorf("recognizer %s is not scriptable", rec.Name())
	}
	task := fake.Current()
	if task == nil {
		return nil, errors.New("no recognition task")
	}
	return task, nil
}

func (d *driver) say(words string) error {
	task, err := d.currentTask()
	if err != nil {
		return err
	}
	task.Say(words)
	return nil
}

func (d *driver) fail(msg string) error {
	task, err := d.currentTask()
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "scripted failure"
	}
	task.Fail(errors.New(msg))
	return nil
}

// wait polls until the controller reaches the named state, or until
// authorization has resolved for "auth".
func (d *driver) wait(arg string) error {
	done := func(s controller.Snapshot) bool { return s.AuthKnown }
	if arg != "auth" {
		want, err := controller.ParseState(arg)
		if err != nil {
			return err
		}
		done = func(s controller.Snapshot) bool { return s.State == want }
	}
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if done(d.ctrl.Snapshot()) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", arg)
}
