package task_test

import (
	"testing"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/task"
)

// newMaintenanceTask returns a Task that, when started, execs `sleep`,
// a binary present on any POSIX system - the only kind whose command
// template needs no external observation program to exercise the
// scheduler lifecycle end to end.
func newMaintenanceTask(duration time.Duration) *task.Task {
	return &task.Task{
		ID:       1,
		Kind:     task.Maintenance,
		Duration: duration,
	}
}

func TestStartRequiresNoOtherActive(t *testing.T) {
	env := &task.Env{}
	a := newMaintenanceTask(time.Second)
	b := newMaintenanceTask(time.Second)

	if err := a.Start(env); err != nil {
		t.Fatalf("Start a: %v", err)
	}
	defer a.Stop(env)

	if err := b.Start(env); err == nil {
		t.Fatal("expected Start to fail while another task is ACTIVE")
	}
	if b.State != task.Idle {
		t.Errorf("b.State = %v, want IDLE (unchanged)", b.State)
	}
}

func TestStopReapsAndClearsActive(t *testing.T) {
	env := &task.Env{}
	tk := newMaintenanceTask(10 * time.Second)
	if err := tk.Start(env); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !env.IsActive() {
		t.Fatal("expected Env to be active after Start")
	}
	if err := tk.Stop(env); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tk.State != task.Stopped {
		t.Errorf("State = %v, want STOPPED", tk.State)
	}
	if env.IsActive() {
		t.Error("expected Env to be inactive after Stop")
	}
}

func TestProcessActiveFinishesOnChildExit(t *testing.T) {
	env := &task.Env{}
	tk := newMaintenanceTask(0) // `sleep 0` exits immediately
	if err := tk.Start(env); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tk.State == task.Active && time.Now().Before(deadline) {
		tk.Process(env, time.Now())
		time.Sleep(10 * time.Millisecond)
	}
	if tk.State != task.Finished {
		t.Fatalf("State = %v, want FINISHED", tk.State)
	}
	if env.IsActive() {
		t.Error("expected Env to be inactive once the task finished")
	}
}

func TestProcessActiveTimesOut(t *testing.T) {
	env := &task.Env{}
	tk := newMaintenanceTask(10 * time.Second)
	tk.MaxRunTime = 50 * time.Millisecond
	if err := tk.Start(env); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop(env)

	time.Sleep(100 * time.Millisecond)
	tk.Process(env, time.Now())

	if tk.State != task.Timeout {
		t.Fatalf("State = %v, want TIMEOUT", tk.State)
	}
	if env.IsActive() {
		t.Error("expected Env to be inactive after a timeout stop")
	}
}

func TestProcessPendingStartsWhenDue(t *testing.T) {
	env := &task.Env{}
	tk := newMaintenanceTask(time.Second)
	tk.ScheduleTime = time.Now().Add(-time.Second)

	tk.Process(env, time.Now())

	if tk.State != task.Active {
		t.Fatalf("State = %v, want ACTIVE", tk.State)
	}
	tk.Stop(env)
}

func TestProcessPendingWaitsWhenNotDue(t *testing.T) {
	env := &task.Env{}
	tk := newMaintenanceTask(time.Second)
	tk.ScheduleTime = time.Now().Add(time.Hour)

	tk.Process(env, time.Now())

	if tk.State != task.Idle {
		t.Fatalf("State = %v, want IDLE (unchanged)", tk.State)
	}
}

func TestProcessPendingAltPeriodCancelsNegative(t *testing.T) {
	env := &task.Env{}
	other := newMaintenanceTask(time.Hour)
	if err := other.Start(env); err != nil {
		t.Fatalf("Start other: %v", err)
	}
	defer other.Stop(env)

	tk := newMaintenanceTask(time.Second)
	tk.MaxRunTime = time.Millisecond
	tk.AltPeriod = -1
	tk.ScheduleTime = time.Now().Add(-time.Hour)

	tk.Process(env, time.Now())

	if tk.State != task.Cancelled {
		t.Fatalf("State = %v, want CANCELLED", tk.State)
	}
}

func TestKindAndStateStrings(t *testing.T) {
	if task.Drift.String() != "DRIFT" || task.GotoEqu.String() != "GOTOEQU" {
		t.Error("unexpected Kind.String() output")
	}
	if task.Active.String() != "ACTIVE" || task.Timeout.String() != "TIMEOUT" {
		t.Error("unexpected State.String() output")
	}
}
