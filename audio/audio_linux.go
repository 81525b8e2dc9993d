//go:build linux

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.Channels > 1 {
		return nil, fmt.Errorf("pulse capture is mono only, got %d channels", config.Channels)
	}
	c := &pulseCapture{client: p.client, rate: int(config.SampleRate), name: defaultDeviceName}
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		c.source, c.name = source, device.Name
	}
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture records S16 mono. Samples are delivered unscaled since
// amplitudes are compared against an absolute threshold.
type pulseCapture struct {
	callbackSlot
	client *pulse.Client
	source *pulse.Source // nil records from the default source
	rate   int
	name   string

	mu     sync.Mutex
	stream *pulse.RecordStream
	buf    []byte
}

func (c *pulseCapture) write(samples []int16) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	if cap(c.buf) < len(samples)*2 {
		c.buf = make([]byte, len(samples)*2)
	}
	data := c.buf[:len(samples)*2]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	c.deliver(data, uint32(len(samples)))
	return len(samples), nil
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return errors.New("pulse capture already started")
	}

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(c.rate),
		pulse.RecordLatency(0.05),
	}
	if c.source != nil {
		opts = append(opts, pulse.RecordSource(c.source))
	}
	stream, err := c.client.NewRecord(pulse.Int16Writer(c.write), opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}
	stream.Start()
	c.stream = stream
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) DeviceName() string { return c.name }
