package mailbox

import (
	"bytes"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/task"
)

// Record is the wire/persisted layout of one Task, per spec.md
// section 6's "Task record layout (binary)". Fields are plain value
// types so gob can encode it without custom marshalling.
type Record struct {
	ID         int64
	Type       int32
	StartTime  int64 // epoch seconds, 0 if not yet started
	SubmitTime int64
	Priority   int32
	AltPeriod  float64 // hours; 0 = any time, <0 = this window only
	User       [16]byte
	Coords1X   float64
	Coords1Y   float64
	Coords2X   float64
	Coords2Y   float64
	Step1      float64
	Step2      float64
	IntTime    float64 // seconds
	RefCycle   int32
	Duration   float64 // hours
	Elapsed    float64 // hours
	ETA        float64 // hours
	Status     int32
	Comment    [128]byte
}

func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(src []byte) string {
	i := bytes.IndexByte(src, 0)
	if i < 0 {
		i = len(src)
	}
	return string(src[:i])
}

// RecordFromTask renders t in the wire/persisted Record layout. The
// wire "start_time" field carries the task's requested ScheduleTime,
// not the runtime StartTime recorded once a child process is actually
// spawned - the record layout of spec.md section 6 has no separate
// field for the latter, and eta/elapsed already summarise runtime
// progress for a client.
func RecordFromTask(t *task.Task) *Record {
	r := &Record{
		ID:         t.ID,
		Type:       int32(t.Kind),
		SubmitTime: t.SubmitTime.Unix(),
		Priority:   int32(t.Priority),
		AltPeriod:  t.AltPeriod.Hours(),
		Coords1X:   t.Coords1.X,
		Coords1Y:   t.Coords1.Y,
		Coords2X:   t.Coords2.X,
		Coords2Y:   t.Coords2.Y,
		Step1:      t.Step1,
		Step2:      t.Step2,
		IntTime:    t.IntTime.Seconds(),
		RefCycle:   int32(t.RefInterval),
		Duration:   t.Duration.Hours(),
		Elapsed:    t.ElapsedTime.Hours(),
		Status:     int32(t.State),
	}
	if !t.ScheduleTime.IsZero() {
		r.StartTime = t.ScheduleTime.Unix()
	}
	if t.MaxRunTime > 0 {
		remaining := t.MaxRunTime - t.ElapsedTime
		if remaining < 0 {
			remaining = 0
		}
		r.ETA = remaining.Hours()
	}
	putString(r.User[:], t.User)
	putString(r.Comment[:], t.Comment)
	return r
}

// ToTask reconstructs the scheduler-facing fields of a Task from r.
// ExecPath/DataPath/MaxRunTime are not part of the wire record and
// must be set by the caller afterwards.
func (r *Record) ToTask() *task.Task {
	t := &task.Task{
		ID:           r.ID,
		Kind:         task.Kind(r.Type),
		Priority:     int(r.Priority),
		SubmitTime:   time.Unix(r.SubmitTime, 0),
		ScheduleTime: time.Unix(r.StartTime, 0),
		AltPeriod:    time.Duration(r.AltPeriod * float64(time.Hour)),
		Coords1:      task.Coords{X: r.Coords1X, Y: r.Coords1Y},
		Coords2:      task.Coords{X: r.Coords2X, Y: r.Coords2Y},
		Step1:        r.Step1,
		Step2:        r.Step2,
		IntTime:      time.Duration(r.IntTime * float64(time.Second)),
		RefInterval:  int(r.RefCycle),
		Duration:     time.Duration(r.Duration * float64(time.Hour)),
		ElapsedTime:  time.Duration(r.Elapsed * float64(time.Hour)),
		State:        task.State(r.Status),
		User:         getString(r.User[:]),
		Comment:      getString(r.Comment[:]),
	}
	return t
}
