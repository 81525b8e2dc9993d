//go:build darwin

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// One playback device is kept open; the data callback reads the current
// chime from an atomic pointer and pads with silence.
var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	deviceMu sync.Mutex

	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
)

func initBackend() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := openDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func openDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: fill})
	return err
}

func fill(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	n := uint32(0)
	if samples := current.Load(); samples != nil {
		at := pos.Load()
		n = min(want, uint32(len(*samples))-at)
		copy(out[:n], (*samples)[at:at+n])
		pos.Store(at + n)
		if n == 0 {
			current.Store(nil)
		}
	}
	clear(out[n:want])
}

func output(pcm []int16) {
	if malgoCtx == nil || len(pcm) == 0 {
		return
	}
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	deviceMu.Lock()
	defer deviceMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	pos.Store(0)
	current.Store(&buf)

	if err := device.Start(); err != nil {
		// The device goes stale across sleep/wake; reopen once.
		device.Uninit()
		if err := openDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
