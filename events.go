package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"utter/palette"
)

// eventView prints every view call as one EVENT line so a script driving
// the headless mode can follow the user-visible state.
type eventView struct {
	mu  sync.Mutex
	out io.Writer
}

func newEventView(out io.Writer) *eventView {
	return &eventView{out: out}
}

func (v *eventView) emit(name string, args ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.out, "EVENT ", name)
	for _, a := range args {
		fmt.Fprint(v.out, " ", a)
	}
	fmt.Fprintln(v.out)
}

func (v *eventView) SetControlEnabled(enabled bool) {
	v.emit("control_enabled", strconv.FormatBool(enabled))
}

func (v *eventView) SetRecording(recording bool) {
	v.emit("recording", strconv.FormatBool(recording))
}

func (v *eventView) SetText(text string) {
	v.emit("text", strconv.Quote(text))
}

func (v *eventView) SetColor(c palette.Color) {
	name := c.Name
	if name == "" {
		name = "initial"
	}
	v.emit("color", name)
}

func (v *eventView) Alert(title, message string) {
	v.emit("alert", strconv.Quote(title), strconv.Quote(message))
}
