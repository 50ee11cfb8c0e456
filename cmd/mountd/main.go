/*Command mountd is the on-board real-time control core: it connects
the GPIO/SPI/I2C facade, the two encoder readers, the two motor
drivers, the voltage/temperature monitors, and the pointing controller,
then runs the pointing poll loop until signalled to stop.

Configuration is read from a YAML file, the same ioutil.ReadFile +
yaml.Unmarshal pattern cmd/envmon uses in the teacher repo.
*/
package main

import (
	"flag"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/adcsampler"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/coord"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/encoder"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/monitor"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/motor"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/pointing"
)

// PinConfig mirrors motor.Pins in a YAML-friendly shape.
type PinConfig struct {
	PWM       int  `yaml:"pwm"`
	Dir       int  `yaml:"dir"`
	DirA      int  `yaml:"dir_a"`
	DirB      int  `yaml:"dir_b"`
	Enable    int  `yaml:"enable"`
	Fault     int  `yaml:"fault"`
	HasDir    bool `yaml:"has_dir"`
	HasDirAB  bool `yaml:"has_dir_ab"`
	HasEnable bool `yaml:"has_enable"`
	HasFault  bool `yaml:"has_fault"`
}

// EncoderConfig configures one encoder.Reader.
type EncoderConfig struct {
	Channel string `yaml:"channel"` // "main" or "aux"
	BaudHz  int    `yaml:"baud_hz"`
	STBits  uint   `yaml:"st_bits"`
	MTBits  uint   `yaml:"mt_bits"`
}

// MotorConfig configures one motor.Driver.
type MotorConfig struct {
	Pins          PinConfig `yaml:"pins"`
	Inverted      bool      `yaml:"inverted"`
	RampPerSecond float64   `yaml:"ramp_per_second"`
	HasADC        bool      `yaml:"has_adc"`
	ADCAddr       int       `yaml:"adc_addr"`
	ADCChannel    int       `yaml:"adc_channel"`
}

// Config is mountd's top-level YAML configuration.
type Config struct {
	GPIOAddr string `yaml:"gpio_addr"`

	EncoderAz  EncoderConfig `yaml:"encoder_az"`
	EncoderAlt EncoderConfig `yaml:"encoder_alt"`

	MotorAz  MotorConfig `yaml:"motor_az"`
	MotorAlt MotorConfig `yaml:"motor_alt"`

	RatioAz   float64 `yaml:"ratio_az"`
	RatioAlt  float64 `yaml:"ratio_alt"`
	OffsetAz  float64 `yaml:"offset_az_deg"`
	OffsetAlt float64 `yaml:"offset_alt_deg"`

	ParkAz  float64 `yaml:"park_az_deg"`
	ParkAlt float64 `yaml:"park_alt_deg"`

	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`

	ThermalZonePath string `yaml:"thermal_zone_path"`

	VoltageADCAddr    int `yaml:"voltage_adc_addr"`
	VoltageADCChannel int `yaml:"voltage_adc_channel"`
}

func loadConfig(path string) *Config {
	c := &Config{
		RatioAz:  1,
		RatioAlt: 1,
		ParkAlt:  89.5,
		ParkAz:   180,
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("mountd: no config at %s, using defaults", path)
			return c
		}
		log.Fatalf("mountd: reading %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		log.Fatalf("mountd: parsing %s: %v", path, err)
	}
	return c
}

func shiftChannel(name string) gpioif.ShiftChannel {
	if name == "aux" {
		return gpioif.ChannelAux
	}
	return gpioif.ChannelMain
}

func toPins(p PinConfig) motor.Pins {
	return motor.Pins{
		PWM:       gpioif.Pin(p.PWM),
		Dir:       gpioif.Pin(p.Dir),
		DirA:      gpioif.Pin(p.DirA),
		DirB:      gpioif.Pin(p.DirB),
		Enable:    gpioif.Pin(p.Enable),
		Fault:     gpioif.Pin(p.Fault),
		HasDir:    p.HasDir,
		HasDirAB:  p.HasDirAB,
		HasEnable: p.HasEnable,
		HasFault:  p.HasFault,
	}
}

func buildEncoder(bus gpioif.Device, cfg EncoderConfig) (*encoder.Reader, error) {
	return encoder.New(encoder.Config{
		Bus:     bus,
		Channel: shiftChannel(cfg.Channel),
		BaudHz:  cfg.BaudHz,
		STBits:  cfg.STBits,
		MTBits:  cfg.MTBits,
	})
}

func buildMotor(bus gpioif.Device, cfg MotorConfig) (*motor.Driver, error) {
	return motor.New(motor.Config{
		Bus:           bus,
		Pins:          toPins(cfg.Pins),
		Inverted:      cfg.Inverted,
		RampPerSecond: cfg.RampPerSecond,
		HasADC:        cfg.HasADC,
		ADCAddr:       byte(cfg.ADCAddr),
		ADCChannel:    byte(cfg.ADCChannel),
	})
}

func main() {
	configPath := flag.String("c", "mountd.yml", "path to YAML configuration")
	flag.Parse()

	cfg := loadConfig(*configPath)

	bus, err := gpioif.Dial(cfg.GPIOAddr)
	if err != nil {
		log.Fatalf("mountd: connecting to GPIO daemon at %s: %v", cfg.GPIOAddr, err)
	}
	defer bus.Close()

	encAz, err := buildEncoder(bus, cfg.EncoderAz)
	if err != nil {
		log.Fatalf("mountd: azimuth encoder: %v", err)
	}
	encAlt, err := buildEncoder(bus, cfg.EncoderAlt)
	if err != nil {
		log.Fatalf("mountd: altitude encoder: %v", err)
	}
	motorAz, err := buildMotor(bus, cfg.MotorAz)
	if err != nil {
		log.Fatalf("mountd: azimuth motor: %v", err)
	}
	motorAlt, err := buildMotor(bus, cfg.MotorAlt)
	if err != nil {
		log.Fatalf("mountd: altitude motor: %v", err)
	}

	if err := encAz.Start(); err != nil {
		log.Fatalf("mountd: starting azimuth encoder: %v", err)
	}
	defer encAz.Stop()
	if err := encAlt.Start(); err != nil {
		log.Fatalf("mountd: starting altitude encoder: %v", err)
	}
	defer encAlt.Stop()
	if err := motorAz.Start(); err != nil {
		log.Fatalf("mountd: starting azimuth motor: %v", err)
	}
	defer motorAz.Stop()
	if err := motorAlt.Start(); err != nil {
		log.Fatalf("mountd: starting altitude motor: %v", err)
	}
	defer motorAlt.Stop()

	var voltageSampler *adcsampler.Sampler
	var voltageMonitor *monitor.Sampler
	if cfg.MotorAz.HasADC || cfg.MotorAlt.HasADC {
		voltageSampler, err = adcsampler.New(adcsampler.Config{
			Bus:        bus,
			Addr:       byte(cfg.VoltageADCAddr),
			Channel:    adcsampler.Channel(cfg.VoltageADCChannel),
			WindowSize: 16,
		})
		if err != nil {
			log.Printf("mountd: voltage sampler: %v", err)
		} else if err := voltageSampler.Start(); err != nil {
			log.Printf("mountd: starting voltage sampler: %v", err)
		} else {
			defer voltageSampler.Stop()
			voltageMonitor, err = monitor.NewADCMonitor(voltageSampler, monitor.Config{
				Callback: func(s monitor.Sample) {
					log.Printf("mountd: supply voltage %.3f V", s.Value)
				},
			})
			if err != nil {
				log.Printf("mountd: voltage monitor: %v", err)
			} else {
				voltageMonitor.Start()
				defer voltageMonitor.Stop()
			}
		}
	}

	var thermalMonitor *monitor.Sampler
	if cfg.ThermalZonePath != "" {
		thermalMonitor, err = monitor.NewThermalMonitor(cfg.ThermalZonePath, monitor.Config{
			Callback: func(s monitor.Sample) {
				log.Printf("mountd: enclosure temperature %.1f C", s.Value)
			},
		})
		if err != nil {
			log.Printf("mountd: thermal monitor: %v", err)
		} else {
			thermalMonitor.Start()
			defer thermalMonitor.Stop()
		}
	}

	ctl, err := pointing.New(pointing.Config{
		EncAz:     encAz,
		EncAlt:    encAlt,
		MotorAz:   motorAz,
		MotorAlt:  motorAlt,
		RatioAz:   cfg.RatioAz,
		RatioAlt:  cfg.RatioAlt,
		OffsetAz:  cfg.OffsetAz,
		OffsetAlt: cfg.OffsetAlt,
		Location:  coord.Location{LatDeg: cfg.LatDeg, LonDeg: cfg.LonDeg},
		ParkAz:    cfg.ParkAz,
		ParkAlt:   cfg.ParkAlt,
	})
	if err != nil {
		log.Fatalf("mountd: pointing controller: %v", err)
	}
	ctl.Start()
	defer ctl.Stop()

	log.Printf("mountd: running (lat=%.4f lon=%.4f)", cfg.LatDeg, cfg.LonDeg)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-ticker.C:
			st := ctl.Status()
			log.Printf("mountd: state=%s az=%.3f alt=%.3f faultAz=%v faultAlt=%v",
				st.State, st.Current.AzDeg, st.Current.AltDeg, st.FaultAz, st.FaultAlt)
		case s := <-sig:
			log.Printf("mountd: received %s, shutting down", s)
			return
		}
	}
}
