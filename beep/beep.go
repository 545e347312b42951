// Package beep plays short audible cues for recording start, stop, a colour
// match and errors.
package beep

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const (
	sampleRate = 44100

	// Start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Match: two rising ticks
	matchFreq   = 1500
	matchVolume = 0.35
	matchDecay  = 50

	// Error: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

type cue int

const (
	cueStart cue = iota
	cueEnd
	cueMatch
	cueError
)

// tone synthesises one mono cue as PCM16 samples.
func tone(c cue) []int16 {
	switch c {
	case cueStart:
		return generateTick(startFreq, 0.03, startVolume, startDecay)
	case cueEnd:
		return generateTick(endFreq, 0.05, endVolume, endDecay)
	case cueMatch:
		lo := generateTick(matchFreq, 0.04, matchVolume, matchDecay)
		hi := generateTick(matchFreq*1.5, 0.04, matchVolume, matchDecay)
		return append(lo, hi...)
	default:
		return generateDoubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	}
}

func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := generateTick(freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(b)*2+len(gap))
	result = append(result, b...)
	result = append(result, gap...)
	return append(result, b...)
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func PlayStart() { play(cueStart) }
func PlayEnd()   { play(cueEnd) }
func PlayMatch() { play(cueMatch) }
func PlayError() { play(cueError) }

func play(c cue) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSound)
	playCue(c)
}
