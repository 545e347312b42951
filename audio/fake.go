package audio

import (
	"os"
	"sync"
	"time"

	"utter/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext hands out captures that replay a PCM buffer in real time and
// then feed silence until stopped.
type FakeContext struct {
	pcm      []byte
	interval time.Duration
	devices  []DeviceInfo

	mu       sync.Mutex
	startErr error
	captures []*FakeCapture
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{
		pcm:      pcm,
		interval: time.Duration(fakeFrameSize) * time.Second / encoder.SampleRate,
		devices:  []DeviceInfo{{ID: "fake", Name: "fake"}},
	}
}

// NewFakeContextFromWAV loads a 16 kHz mono PCM16 WAV file.
func NewFakeContextFromWAV(path string) (*FakeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContext(data), nil
}

// SetStartError makes every subsequent Start on captures of this context fail.
func (f *FakeContext) SetStartError(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// SetDevices replaces the enumerated device list. An empty list simulates a
// machine without microphones.
func (f *FakeContext) SetDevices(devices []DeviceInfo) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeviceInfo(nil), f.devices...), nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{ctx: f}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) startError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startErr
}

type FakeCapture struct {
	ctx *FakeContext

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	starts   int
	stops    int
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *FakeCapture) DeviceName() string { return "fake" }

func (c *FakeCapture) Start() error {
	if err := c.ctx.startError(); err != nil {
		return err
	}

	c.mu.Lock()
	c.starts++
	stopCh, feedDone := make(chan struct{}), make(chan struct{})
	c.stopCh, c.feedDone = stopCh, feedDone
	c.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	go func() {
		defer close(feedDone)
		pcm := c.ctx.pcm
		silence := make([]byte, chunkBytes)
		pos := 0
		for {
			select {
			case <-stopCh:
				return
			case <-time.After(c.ctx.interval):
			}

			c.mu.Lock()
			cb := c.cb
			c.mu.Unlock()
			if cb == nil {
				continue
			}

			if pos < len(pcm) {
				end := min(pos+chunkBytes, len(pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, pcm[pos:end])
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
				pos = end
			} else {
				cb(silence, fakeFrameSize)
			}
		}
	}()
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	stopCh, feedDone := c.stopCh, c.feedDone
	c.stopCh, c.feedDone = nil, nil
	if stopCh != nil {
		c.stops++
	}
	c.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-feedDone
}

func (c *FakeCapture) Close() { c.Stop() }

// Running reports whether the capture is between Start and Stop.
func (c *FakeCapture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCh != nil
}

// Counts returns how many times the capture was started and stopped.
func (c *FakeCapture) Counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}
