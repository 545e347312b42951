package controller

import (
	"errors"

	"utter/recognizer"
)

const AlertTitle = "Speech Recognizer Error"

var (
	ErrAudioEngineStart                 = errors.New("audio engine failed to start")
	ErrRecognizerUnavailable            = recognizer.ErrUnavailable
	ErrRecognizerTemporarilyUnavailable = recognizer.ErrTemporarilyUnavailable
	ErrRecognition                      = recognizer.ErrRecognition
)

// AlertMessage maps an error to the fixed text shown to the user. The
// wrapped cause only reaches the diagnostics log.
func AlertMessage(err error) string {
	switch {
	case errors.Is(err, ErrAudioEngineStart):
		return "There has been an audio engine error."
	case errors.Is(err, ErrRecognizerUnavailable):
		return "Speech recognition is not supported for your current locale."
	case errors.Is(err, ErrRecognizerTemporarilyUnavailable):
		return "Speech recognition is not currently available. Check back at a later time."
	default:
		return "There has been a speech recognition error."
	}
}
