/*Package task models one scheduled observation job: its lifecycle
state machine, the shell command used to run it, and the external
process that carries it out.

Per-kind behaviour is a command-template lookup (see commands.go), not a
class hierarchy: a Task is a single struct tagged by Kind, dispatched
through a switch on Kind in buildCommands, in the spirit of this module's tagged-variant idioms
elsewhere (gpioif's opcode encoders, encoder's frame decoding).
*/
package task

import (
	"fmt"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies the variant of a Task, and therefore the shell
// command template used to run it.
type Kind int

// Task kinds, matching the wire task-record layout.
const (
	Drift Kind = iota
	Track
	HorScan
	EquScan
	GotoHor
	GotoEqu
	Park
	Maintenance
	Unpark
)

func (k Kind) String() string {
	switch k {
	case Drift:
		return "DRIFT"
	case Track:
		return "TRACK"
	case HorScan:
		return "HORSCAN"
	case EquScan:
		return "EQUSCAN"
	case GotoHor:
		return "GOTOHOR"
	case GotoEqu:
		return "GOTOEQU"
	case Park:
		return "PARK"
	case Maintenance:
		return "MAINTENANCE"
	case Unpark:
		return "UNPARK"
	default:
		return "UNKNOWN"
	}
}

// State is a Task's lifecycle state.
type State int

// Task lifecycle states.
const (
	Idle State = iota
	Waiting
	Active
	Finished
	Stopped
	Cancelled
	Error
	Timeout
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Waiting:
		return "WAITING"
	case Active:
		return "ACTIVE"
	case Finished:
		return "FINISHED"
	case Stopped:
		return "STOPPED"
	case Cancelled:
		return "CANCELLED"
	case Error:
		return "ERROR"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

func (s State) terminal() bool {
	switch s {
	case Finished, Stopped, Cancelled, Error, Timeout:
		return true
	default:
		return false
	}
}

// Coords is a generic 2-component coordinate pair, interpreted
// per-kind (az/alt, RA/Dec, or scan endpoints).
type Coords struct {
	X, Y float64
}

// Task is one scheduled observation job.
type Task struct {
	ID           int64
	Kind         Kind
	Priority     int // 0=ignore .. 5=low
	ScheduleTime time.Time
	SubmitTime   time.Time
	StartTime    time.Time
	AltPeriod    time.Duration // 0 = any time, <0 = this window only
	Duration     time.Duration
	IntTime      time.Duration
	RefInterval  int
	Coords1      Coords
	Coords2      Coords
	Step1, Step2 float64
	User         string
	Comment      string

	State       State
	ElapsedTime time.Duration
	MaxRunTime  time.Duration

	PIDs []int

	// ExecPath and DataPath parametrise the shell command template;
	// DataFile is computed once at Start.
	ExecPath string
	DataPath string
	DataFile string
}

// Env holds process-wide scheduling state shared by every Task: at
// most one task may be ACTIVE at a time.
type Env struct {
	active bool
}

// IsActive reports whether some task is presently ACTIVE.
func (e *Env) IsActive() bool { return e.active }

// Start spawns the task's child process in a new process group,
// recording the group id. It fails if another task is already ACTIVE
// or this task is not IDLE/WAITING.
func (t *Task) Start(env *Env) error {
	if env.active {
		return errors.New("task: another task is already active")
	}
	if t.State != Idle && t.State != Waiting {
		return errors.Errorf("task: cannot start from state %s", t.State)
	}

	t.DataFile = dataFileName(t.Kind, time.Now())
	cmds, err := buildCommands(t)
	if err != nil {
		t.State = Error
		return errors.Wrap(err, "task: build command")
	}

	t.PIDs = nil
	for _, cmd := range cmds {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			t.State = Error
			return errors.Wrap(err, "task: start child process")
		}
		t.PIDs = append(t.PIDs, cmd.Process.Pid)
	}

	t.StartTime = time.Now()
	t.State = Active
	env.active = true
	return nil
}

// Stop sends SIGKILL to every recorded process group and polls
// waitpid(-pgid, _, WNOHANG) until each group is fully reaped.
func (t *Task) Stop(env *Env) error {
	wasActive := t.State == Active
	for _, pid := range t.PIDs {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
	for _, pid := range t.PIDs {
		var status syscall.WaitStatus
		for {
			wpid, err := syscall.Wait4(-pid, &status, syscall.WNOHANG, nil)
			if err == syscall.EINTR || wpid > 0 {
				continue
			}
			if wpid == 0 && err == nil {
				// children still exiting
				time.Sleep(time.Millisecond)
				continue
			}
			break // ECHILD: the group is gone
		}
	}
	t.PIDs = nil
	t.State = Stopped
	if wasActive {
		env.active = false
	}
	return nil
}

// Cancel stops the task, then marks it CANCELLED.
func (t *Task) Cancel(env *Env) error {
	if err := t.Stop(env); err != nil {
		return err
	}
	t.State = Cancelled
	return nil
}

// Process runs one scheduler-tick step of this task's lifecycle, per
// spec.md section 4.7.
func (t *Task) Process(env *Env, now time.Time) {
	switch {
	case t.State.terminal():
		return
	case t.State == Active:
		t.processActive(env, now)
	case t.State == Idle || t.State == Waiting:
		t.processPending(env, now)
	}
}

func (t *Task) processActive(env *Env, now time.Time) {
	allReaped, err := t.reapNonBlocking()
	if err != nil {
		t.Stop(env)
		t.State = Error
		return
	}
	if allReaped {
		t.PIDs = nil
		t.State = Finished
		env.active = false
		return
	}

	t.ElapsedTime = now.Sub(t.StartTime)
	if t.MaxRunTime > 0 && t.ElapsedTime > t.MaxRunTime {
		t.Stop(env)
		t.State = Timeout
	}
}

// reapNonBlocking polls waitpid(pid, _, WNOHANG) for every tracked
// process, reporting whether all of them have exited.
func (t *Task) reapNonBlocking() (bool, error) {
	allDone := true
	for _, pid := range t.PIDs {
		var status syscall.WaitStatus
		wpid, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
		if err == syscall.ECHILD {
			// already reaped; the child is gone
			continue
		}
		if err != nil {
			return false, err
		}
		if wpid != pid {
			allDone = false
		}
	}
	return allDone, nil
}

func (t *Task) processPending(env *Env, now time.Time) {
	if t.ScheduleTime.After(now) {
		return
	}
	if !env.active {
		if err := t.Start(env); err != nil {
			t.State = Error
		}
		return
	}
	t.State = Waiting
	if t.MaxRunTime > 0 && t.ScheduleTime.Add(t.MaxRunTime).Before(now) {
		if t.AltPeriod < 0 {
			t.State = Cancelled
		} else if t.AltPeriod > 0 {
			t.ScheduleTime = t.ScheduleTime.Add(t.AltPeriod)
		}
	}
}

// dataFileName builds the "task_<kind><YYYYMMDD>_<seconds-of-day>" data
// filename for a task starting at t.
func dataFileName(k Kind, t time.Time) string {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	secOfDay := int(t.Sub(midnight).Seconds())
	return fmt.Sprintf("task_%s%s_%d", k, t.Format("20060102"), secOfDay)
}
