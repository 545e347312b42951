//go:build gui

package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"utter/audio"
	"utter/gui"
)

// Audio context initialized on main thread for macOS Core Audio compatibility
var guiAudioCtx audio.Context

func initGUI() {
	var err error
	guiAudioCtx, err = audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}

	// Lock this goroutine to OS thread for Fyne/GLFW
	runtime.LockOSThread()

	done := make(chan struct{})
	var app *gui.App
	app = gui.NewApp(func() {
		defer close(done)
		run(app)
	})
	if err := gui.Run(app); err != nil {
		guiAudioCtx.Close()
		panic(err)
	}

	// Give run a moment to release the session and flush the log.
	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}
}
