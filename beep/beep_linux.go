//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// Cues are played one at a time by a single player goroutine sharing one
// pulse client. A cue requested while the queue is full is dropped.
var (
	cues      [4][]int16
	soundOnce sync.Once
	queue     = make(chan cue, 4)
)

func initSound() {
	for c := range cues {
		cues[c] = tone(cue(c))
	}
	go player()
}

func Init() {
	soundOnce.Do(initSound)
}

func playCue(c cue) {
	select {
	case queue <- c:
	default:
	}
}

func player() {
	var client *pulse.Client
	for c := range queue {
		if client == nil {
			var err error
			client, err = pulse.NewClient(pulse.ClientApplicationName("utter"))
			if err != nil {
				continue
			}
		}
		if err := playSamples(client, cues[c]); err != nil {
			// The server may have restarted; reconnect on the next cue.
			client.Close()
			client = nil
		}
	}
}

func playSamples(client *pulse.Client, samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := client.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
	return nil
}
