// Package audio captures mono 16-bit PCM from the default or a chosen input
// device. Linux goes through PulseAudio, everything else through miniaudio.
package audio

import (
	"encoding/binary"
	"strings"
	"sync/atomic"
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives little-endian S16 mono samples. data is only valid
// for the duration of the call.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
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

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// PCM16ToFloat converts S16LE samples to floats in [-1, 1), reusing dst when
// it is large enough.
func PCM16ToFloat(data []byte, dst []float64) []float64 {
	n := len(data) / 2
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return dst
}

// callbackSlot holds the current DataCallback for a capture goroutine.
type callbackSlot struct{ p atomic.Pointer[DataCallback] }

func (s *callbackSlot) SetCallback(cb DataCallback) { s.p.Store(&cb) }
func (s *callbackSlot) ClearCallback()             { s.p.Store(nil) }

// deliver calls the current callback, if any.
func (s *callbackSlot) deliver(data []byte, frames uint32) {
	if cb := s.p.Load(); cb != nil {
		(*cb)(data, frames)
	}
}

const defaultDeviceName = "system default"
