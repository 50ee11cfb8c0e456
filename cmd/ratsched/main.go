/*Command ratsched is the task-scheduler daemon (C10): it binds the
mailbox, restores the persisted task list, and runs the scheduler main
loop until signalled to stop.
*/
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/scheduler"
)

// Config is ratsched's YAML configuration.
type Config struct {
	Key               int    `yaml:"key"`
	PersistPath       string `yaml:"persist_path"`
	ExecPath          string `yaml:"exec_path"`
	DataPath          string `yaml:"data_path"`
	DefaultMaxRunTime string `yaml:"default_max_run_time"` // parsed with time.ParseDuration
}

func loadConfig(path string) *Config {
	c := &Config{
		Key:         42,
		PersistPath: "ratsche_tasks",
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("ratsched: no config at %s, using defaults", path)
		} else {
			log.Fatalf("ratsched: reading %s: %v", path, err)
		}
	} else if err := yaml.Unmarshal(data, c); err != nil {
		log.Fatalf("ratsched: parsing %s: %v", path, err)
	}
	applyEnvOverrides(c)
	return c
}

// applyEnvOverrides lets cmd/ratschedctl's "-d" daemon-launch path hand
// down the key and path flags a caller passed on its own command line,
// without ratsched needing to parse a second copy of that flag set.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("RATSCHED_KEY"); v != "" {
		if k, err := fmt.Sscanf(v, "%d", &c.Key); err != nil || k != 1 {
			log.Printf("ratsched: ignoring malformed RATSCHED_KEY=%q", v)
		}
	}
	if v := os.Getenv("RATSCHED_EXEC_PATH"); v != "" {
		c.ExecPath = v
	}
	if v := os.Getenv("RATSCHED_DATA_PATH"); v != "" {
		c.DataPath = v
	}
}

// exitCode constants, per spec.md section 6 "Scheduler CLI" exit
// codes (ratsched reuses the 2/3 daemon-side cases).
const (
	exitOK = iota
	_
	exitAlreadyRunning
	exitUnhandledFault
)

func main() {
	configPath := flag.String("c", "ratsched.yml", "path to YAML configuration")
	flag.Parse()

	cfg := loadConfig(*configPath)

	var maxRunTime time.Duration
	if cfg.DefaultMaxRunTime != "" {
		d, err := time.ParseDuration(cfg.DefaultMaxRunTime)
		if err != nil {
			log.Fatalf("ratsched: parsing default_max_run_time %q: %v", cfg.DefaultMaxRunTime, err)
		}
		maxRunTime = d
	}

	svc, err := scheduler.New(scheduler.Config{
		Key:               cfg.Key,
		PersistPath:       cfg.PersistPath,
		ExecPath:          cfg.ExecPath,
		DataPath:          cfg.DataPath,
		DefaultMaxRunTime: maxRunTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ratsched: %v\n", err)
		os.Exit(exitAlreadyRunning)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("CRIT: ratsched: unhandled fault: %v", r)
				svc.Stop()
				os.Exit(exitUnhandledFault)
			}
		}()
		svc.Run()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("ratsched: shutting down")
	svc.Stop()
	<-done
	os.Exit(exitOK)
}
