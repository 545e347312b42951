package audio

import (
	"encoding/binary"
	"strings"
)

const WAVHeaderSize = 44

type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig describes the PCM16 stream a capture delivers. Gain
// multiplies every sample before delivery; zero selects the backend's
// default.
type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	Gain       float64
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice streams PCM16 frames to the installed callback between
// Start and Stop. Stop is safe to call when not started.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice returns the device called name, or nil when it is not present.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, nil
}

// isMonitor reports whether a source ID names the loopback of an output
// rather than a microphone.
func isMonitor(id string) bool {
	return strings.HasSuffix(id, ".monitor")
}

// Amplify scales little-endian PCM16 samples in place, clipping at the
// int16 range.
func Amplify(data []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(binary.LittleEndian.Uint16(data[i:]))
		binary.LittleEndian.PutUint16(data[i:], uint16(clip(float64(s)*gain)))
	}
}

func clip(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
