//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	result := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func deviceID(d *DeviceInfo) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	raw, err := hex.DecodeString(d.ID)
	if err != nil {
		return id, fmt.Errorf("invalid device ID %q: %w", d.ID, err)
	}
	copy(id[:], raw)
	return id, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	c := &malgoCapture{name: "system default", gain: config.Gain}
	if c.gain == 0 {
		c.gain = 1
	}
	if device != nil {
		id, err := deviceID(device)
		if err != nil {
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
		c.name = device.Name
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: c.deliver})
	if err != nil {
		return nil, err
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	gain     float64
	callback atomic.Pointer[DataCallback]
}

// deliver runs on the miniaudio thread. The input buffer is reused by
// miniaudio, so gain is applied to a copy.
func (c *malgoCapture) deliver(_, data []byte, frameCount uint32) {
	cb := c.callback.Load()
	if cb == nil {
		return
	}
	if c.gain != 1 {
		data = append([]byte(nil), data...)
		Amplify(data, c.gain)
	}
	(*cb)(data, frameCount)
}

func (c *malgoCapture) Start() error {
	if c.device.IsStarted() {
		return fmt.Errorf("malgo: capture already started")
	}
	return c.device.Start()
}

func (c *malgoCapture) Stop() {
	if c.device.IsStarted() {
		c.device.Stop()
	}
}

func (c *malgoCapture) Close() {
	c.Stop()
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) DeviceName() string { return c.name }
