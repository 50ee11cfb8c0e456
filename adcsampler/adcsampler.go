/*Package adcsampler periodically reads one channel of a 4-channel I2C
ADC and optionally maintains a windowed mean over the last N samples.

Sampler runs the same ticker-driven, single-goroutine, publish-behind-a-
mutex shape used by package encoder and package monitor in this module.
*/
package adcsampler

import (
	"fmt"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
)

// DefaultLoopDelay is the sampling cadence used when Config.LoopDelay is
// zero.
const DefaultLoopDelay = 100 * time.Millisecond

// Channel selects one of the four single-ended inputs of the ADC.
type Channel byte

// ADC input channels.
const (
	Channel0 Channel = iota
	Channel1
	Channel2
	Channel3
)

// Config parametrises a Sampler.
type Config struct {
	Bus     gpioif.Device
	Addr    byte // I2C 7-bit address
	Channel Channel

	// FullScaleVolts converts the raw register reading to volts; zero
	// defaults to 6.144, the ADS1115's widest programmable gain range.
	FullScaleVolts float64

	// WindowSize, when > 0, maintains a ring-buffer mean over the last
	// WindowSize samples in addition to the instantaneous reading.
	WindowSize int

	LoopDelay time.Duration
}

// Sample is one published reading.
type Sample struct {
	Volts     float64
	Mean      float64
	HaveMean  bool
	Timestamp time.Time
}

// Sampler owns a background goroutine polling a single ADC channel.
type Sampler struct {
	cfg Config

	mu      sync.Mutex
	sample  Sample
	ok      bool
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	window ringo.CircleF64
}

// New validates cfg, filling in defaults, and returns a Sampler that is
// not yet running.
func New(cfg Config) (*Sampler, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("adcsampler: Bus must not be nil")
	}
	if cfg.FullScaleVolts == 0 {
		cfg.FullScaleVolts = 6.144
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	s := &Sampler{cfg: cfg}
	if cfg.WindowSize > 0 {
		s.window.Init(cfg.WindowSize)
	}
	return s, nil
}

// Start opens the I2C device and launches the background polling
// goroutine. Calling Start twice is a no-op.
func (s *Sampler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if err := s.cfg.Bus.OpenI2C(s.cfg.Addr); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("adcsampler: open I2C device 0x%02x: %w", s.cfg.Addr, err)
	}
	s.stop = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop signals the background goroutine to exit, waits for it, then
// closes the I2C device.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.cfg.Bus.CloseI2C(s.cfg.Addr)
}

// Sample returns the last published reading and whether it is valid.
func (s *Sampler) Sample() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.ok
}

func (s *Sampler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.LoopDelay)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	raw, err := s.cfg.Bus.ReadRegisters(s.cfg.Addr, byte(s.cfg.Channel)<<1, 2)
	if err != nil {
		s.mu.Lock()
		s.ok = false
		s.mu.Unlock()
		return
	}
	counts := int16(uint16(raw[0])<<8 | uint16(raw[1]))
	volts := float64(counts) / 32768.0 * s.cfg.FullScaleVolts

	s.mu.Lock()
	s.sample.Volts = volts
	s.sample.Timestamp = time.Now()
	if s.cfg.WindowSize > 0 {
		s.window.Append(volts)
		s.sample.Mean = mean(s.window.Contiguous())
		s.sample.HaveMean = true
	}
	s.ok = true
	s.mu.Unlock()
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
