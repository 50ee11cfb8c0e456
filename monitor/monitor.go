/*Package monitor periodically samples environmental quantities -
supply voltage over an ADC channel, enclosure temperature from a sysfs
thermal zone - and publishes each reading via a registered callback.

Sampler is grounded on the same ticker-driven, ringo-backed history
shape used by this module's other periodic readers; the callback
replaces what was, in the teacher, an HTTP response writer.
*/
package monitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/adcsampler"
)

// DefaultLoopDelay is the sampling cadence used when Config.LoopDelay is
// zero.
const DefaultLoopDelay = time.Second

// DefaultHistoryDepth is the default length of the retained sample
// history.
const DefaultHistoryDepth = 60

// Sample is one published reading together with a short rolling
// history.
type Sample struct {
	Value     float64
	History   []float64
	Timestamp time.Time
}

// Config parametrises a Sampler.
type Config struct {
	LoopDelay    time.Duration
	HistoryDepth int

	// Read is called once per tick to obtain the raw value. Sampler
	// does not interpret it further.
	Read func() (float64, error)

	// Callback, if non-nil, is invoked with every successful sample.
	Callback func(Sample)
}

// Sampler owns a background goroutine calling Config.Read on a fixed
// cadence and publishing the result.
type Sampler struct {
	cfg Config

	mu      sync.Mutex
	sample  Sample
	ok      bool
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	history ringo.CircleF64
}

// New validates cfg, filling in defaults, and returns a Sampler that is
// not yet running.
func New(cfg Config) (*Sampler, error) {
	if cfg.Read == nil {
		return nil, fmt.Errorf("monitor: Read must not be nil")
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	if cfg.HistoryDepth == 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}
	s := &Sampler{cfg: cfg}
	s.history.Init(cfg.HistoryDepth)
	return s, nil
}

// Start launches the background sampling goroutine. Calling Start twice
// is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop signals the background goroutine to exit and waits for it.
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
	v, err := s.cfg.Read()
	if err != nil {
		s.mu.Lock()
		s.ok = false
		s.mu.Unlock()
		return
	}

	s.history.Append(v)
	sample := Sample{
		Value:     v,
		History:   append([]float64(nil), s.history.Contiguous()...),
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.sample = sample
	s.ok = true
	s.mu.Unlock()

	if s.cfg.Callback != nil {
		s.cfg.Callback(sample)
	}
}

// NewADCMonitor builds a Sampler that reads its value from an
// adcsampler.Sampler, for supply-voltage monitoring.
func NewADCMonitor(src *adcsampler.Sampler, cfg Config) (*Sampler, error) {
	cfg.Read = func() (float64, error) {
		sample, ok := src.Sample()
		if !ok {
			return 0, fmt.Errorf("monitor: no ADC sample available")
		}
		return sample.Volts, nil
	}
	return New(cfg)
}

// NewThermalMonitor builds a Sampler that reads a Linux sysfs
// thermal-zone temperature file (millidegrees Celsius), e.g.
// "/sys/class/thermal/thermal_zone0/temp".
func NewThermalMonitor(path string, cfg Config) (*Sampler, error) {
	cfg.Read = func() (float64, error) {
		return readThermalZone(path)
	}
	return New(cfg)
}

func readThermalZone(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("monitor: read %s: %w", path, err)
	}
	millideg, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("monitor: parse %s: %w", path, err)
	}
	return millideg / 1000.0, nil
}
