//go:build !gui

package main

import "utter/audio"

// Never set in non-GUI builds.
var guiAudioCtx audio.Context

func initGUI() {
	panic("utter: built without GUI support (rebuild with -tags gui)")
}
