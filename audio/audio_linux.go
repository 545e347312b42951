//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// defaultPulseGain compensates for the low default level of most laptop
// mics under PulseAudio.
const defaultPulseGain = 8

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("utter"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

// Devices lists microphones. Monitor sources are skipped so an output
// loopback never counts as a capture device.
func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		if isMonitor(s.ID()) {
			continue
		}
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.Gain == 0 {
		config.Gain = defaultPulseGain
	}
	var source *pulse.Source
	if device != nil {
		s, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		source = s
	}
	return &pulseCapture{
		client: p.client,
		source: source,
		name:   deviceName(device),
		config: config,
	}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

func deviceName(d *DeviceInfo) string {
	if d != nil {
		return d.Name
	}
	return "system default"
}

// pulseCapture opens a new record stream on every Start; the stream lives
// on its own goroutine until Stop.
type pulseCapture struct {
	client   *pulse.Client
	source   *pulse.Source
	name     string
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (c *pulseCapture) deliver(buf []int16) (int, error) {
	cb := c.callback.Load()
	if cb == nil || len(buf) == 0 {
		return len(buf), nil
	}
	data := make([]byte, len(buf)*2)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	Amplify(data, c.config.Gain)
	(*cb)(data, uint32(len(buf)))
	return len(buf), nil
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return fmt.Errorf("pulse: capture already started")
	}

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			vol := uint32(proto.VolumeNorm) * 3
			r.ChannelVolumes = proto.ChannelVolumes{vol}
		}),
	}
	if c.source != nil {
		opts = append(opts, pulse.RecordSource(c.source))
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.deliver), opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	c.stop, c.done = make(chan struct{}), make(chan struct{})
	go record(stream, c.stop, c.done)
	return nil
}

func record(stream *pulse.RecordStream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	stream.Start()
	<-stop
	stream.Stop()
	stream.Close()
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	return c.name
}
