package encoder

import "encoding/binary"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
	BytesPerSec   = SampleRate * Channels * BitsPerSample / 8
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Samples decodes little-endian PCM16 into samples. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// EncodeAll splits samples into BlockSize frames and feeds them to enc.
func EncodeAll(enc Encoder, samples []int16) error {
	for len(samples) > 0 {
		n := min(BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[:n]); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return enc.Close()
}
