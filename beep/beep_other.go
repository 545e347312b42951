//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	cues      [4][]byte
	soundOnce sync.Once

	// Playback state, read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	for c := range cues {
		cues[c] = toBytes(tone(cue(c)))
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func Init() {
	soundOnce.Do(initSound)
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	samples := playing.Load()
	if samples == nil {
		clear(out)
		return
	}

	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		playing.Store(nil)
		clear(out)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
	clear(out[n:want])
}

func playCue(c cue) {
	if malgoCtx == nil || len(cues[c]) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}
	device.Stop()

	samples := cues[c]
	playPos.Store(0)
	playing.Store(&samples)

	if err := device.Start(); err != nil {
		// Device may be stale after sleep/wake; rebuild once.
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
