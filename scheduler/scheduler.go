/*Package scheduler implements the task scheduler daemon (C10):
a main loop that drains the mailbox, applies ADD/DELETE/CANCEL/STOP/
CLEAR/LIST/PING requests to an ordered task list, deduplicates and
dispatches at most one ACTIVE task at a time, and persists the list to
disk after every mutation.

Service's main loop follows the same time.Ticker/select shape used
throughout this module (encoder.Reader, monitor.Sampler,
pointing.Controller); its single goroutine owns the task list and the
mailbox end, so no locking is needed around either.
*/
package scheduler

import (
	"log"
	"sort"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mailbox"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/task"
)

// DefaultLoopDelay is the scheduler main-loop cadence.
const DefaultLoopDelay = 20 * time.Millisecond

// Dedup thresholds, per spec.md section 4.8.
const (
	dedupStartWindow  = 30 * time.Second
	dedupIntTimeDelta = 1e-3 * float64(time.Second)
	dedupRefDelta     = 5
)

// Config parametrises a Service.
type Config struct {
	// Key is the numeric mailbox key (default 42, per spec.md section
	// 6); it derives both SocketPath (when unset) and the reply
	// addresses of connecting clients.
	Key int

	// SocketPath is where the Service's own mailbox is bound.
	SocketPath string

	// PersistPath is the file the task list is dumped to/restored
	// from (encoding/gob, per DESIGN.md).
	PersistPath string

	// ExecPath and DataPath are passed through to every Task so it
	// can build its child-process command line and data filename.
	ExecPath string
	DataPath string

	// DefaultMaxRunTime is used for a task whose Duration is zero.
	DefaultMaxRunTime time.Duration

	LoopDelay time.Duration
}

// Service owns the live task list and the scheduler main loop.
type Service struct {
	cfg Config
	mb  *mailbox.Mailbox
	env task.Env

	lastTaskID int64
	tasks      []*task.Task

	stop chan struct{}
	done chan struct{}
}

// New constructs a Service, binding its mailbox and restoring the
// persisted task list if one exists. Any ACTIVE task loaded from disk
// is transitioned to STOPPED, since the process group it recorded
// cannot have survived a restart, per spec.md section 4.8 "Startup".
func New(cfg Config) (*Service, error) {
	if cfg.Key == 0 {
		cfg.Key = 42
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = mailbox.SocketPath(cfg.Key)
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	mb, err := mailbox.Listen(cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, mb: mb}
	s.drainStale()
	if cfg.PersistPath != "" {
		tasks, lastID, err := loadTasks(cfg.PersistPath)
		if err != nil {
			log.Printf("scheduler: restoring %s: %v", cfg.PersistPath, err)
		} else {
			s.tasks = tasks
			s.lastTaskID = lastID
		}
	}
	for _, t := range s.tasks {
		if t.State == task.Active {
			t.State = task.Stopped
		}
		t.ExecPath = cfg.ExecPath
		t.DataPath = cfg.DataPath
		if t.Duration > 0 {
			t.MaxRunTime = t.Duration
		} else {
			t.MaxRunTime = cfg.DefaultMaxRunTime
		}
	}
	return s, nil
}

// Run executes the main loop until Stop is called or ctx-equivalent
// shutdown is requested. It blocks the calling goroutine; callers
// typically invoke it via `go s.Run()`.
func (s *Service) Run() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.LoopDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

// Stop signals Run to exit and waits for it to return, then cancels any
// ACTIVE task and closes the mailbox. Tasks in other states are left
// as they are.
func (s *Service) Stop() {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	for _, t := range s.tasks {
		if t.State == task.Active {
			t.Cancel(&s.env)
		}
	}
	s.mb.Close()
}

func (s *Service) tick() {
	if m, ok, err := s.mb.Recv(); err != nil {
		log.Printf("scheduler: mailbox recv: %v", err)
	} else if ok {
		s.dispatch(m)
	}
	s.processTaskList()
	if s.cfg.PersistPath != "" {
		if err := saveTasks(s.cfg.PersistPath, s.tasks); err != nil {
			log.Printf("scheduler: persisting task list: %v", err)
		}
	}
}

func (s *Service) dispatch(m mailbox.Message) {
	switch m.Action {
	case mailbox.Ping:
		s.replyPing(m)
	case mailbox.List:
		s.replyList(m)
	case mailbox.Add:
		s.add(m)
	case mailbox.Delete:
		s.delete(int64(m.SubAction))
	case mailbox.Cancel:
		s.cancel(int64(m.SubAction))
	case mailbox.Stop:
		s.stopTask(int64(m.SubAction))
	case mailbox.Clear:
		s.clear()
	default:
		log.Printf("scheduler: unrecognised action %v from pid %d", m.Action, m.Sender)
	}
}

func (s *Service) replyPing(m mailbox.Message) {
	reply := mailbox.Message{Recipient: m.Sender, Sender: mailbox.ServiceRecipient, Action: mailbox.Ping}
	if err := s.mb.SendTo(mailbox.ClientSocketPathFor(s.cfg.Key, m.Sender), reply); err != nil {
		log.Printf("scheduler: PING reply to pid %d: %v", m.Sender, err)
	}
}

func (s *Service) replyList(m mailbox.Message) {
	ordered := make([]*task.Task, len(s.tasks))
	copy(ordered, s.tasks)
	descending := m.SubAction == 1
	sort.Slice(ordered, func(i, j int) bool {
		if descending {
			return ordered[i].ScheduleTime.After(ordered[j].ScheduleTime)
		}
		return ordered[i].ScheduleTime.Before(ordered[j].ScheduleTime)
	})

	n := len(ordered)
	dest := mailbox.ClientSocketPathFor(s.cfg.Key, m.Sender)
	if n == 0 {
		reply := mailbox.Message{Recipient: m.Sender, Sender: mailbox.ServiceRecipient, Action: mailbox.List, SeriesCount: 0}
		if err := s.mb.SendTo(dest, reply); err != nil {
			log.Printf("scheduler: LIST reply to pid %d: %v", m.Sender, err)
		}
		return
	}
	for i, t := range ordered {
		reply := mailbox.Message{
			Recipient:   m.Sender,
			Sender:      mailbox.ServiceRecipient,
			Action:      mailbox.List,
			SeriesID:    int32(i + 1),
			SeriesCount: int32(n),
			Record:      mailbox.RecordFromTask(t),
		}
		if err := s.mb.SendTo(dest, reply); err != nil {
			log.Printf("scheduler: LIST reply %d/%d to pid %d: %v", i+1, n, m.Sender, err)
		}
	}
}

func (s *Service) add(m mailbox.Message) {
	if m.Record == nil {
		log.Printf("scheduler: ADD from pid %d carries no task record, ignored", m.Sender)
		return
	}
	s.lastTaskID++
	t := m.Record.ToTask()
	t.ID = s.lastTaskID
	t.SubmitTime = time.Now()
	t.ExecPath = s.cfg.ExecPath
	t.DataPath = s.cfg.DataPath
	if t.Duration > 0 {
		t.MaxRunTime = t.Duration
	} else {
		t.MaxRunTime = s.cfg.DefaultMaxRunTime
	}
	s.tasks = append(s.tasks, t)
}

func (s *Service) find(id int64) *task.Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Service) delete(id int64) {
	t := s.find(id)
	if t == nil {
		return
	}
	if t.State == task.Active {
		t.Cancel(&s.env)
	}
	s.removeByID(id)
}

func (s *Service) cancel(id int64) {
	if t := s.find(id); t != nil {
		t.Cancel(&s.env)
	}
}

func (s *Service) stopTask(id int64) {
	if t := s.find(id); t != nil {
		t.Stop(&s.env)
	}
}

func (s *Service) clear() {
	for _, t := range s.tasks {
		if t.State == task.Active {
			t.Cancel(&s.env)
		}
	}
	s.tasks = nil
}

func (s *Service) removeByID(id int64) {
	out := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	s.tasks = out
}

// processTaskList deduplicates, sorts by ScheduleTime, and steps every
// task, per spec.md section 4.8.
func (s *Service) processTaskList() {
	s.dedup()
	sort.Slice(s.tasks, func(i, j int) bool {
		return s.tasks[i].ScheduleTime.Before(s.tasks[j].ScheduleTime)
	})
	now := time.Now()
	for _, t := range s.tasks {
		t.Process(&s.env, now)
	}
}

// dedup removes the later-submitted of any pair of tasks considered
// identical per spec.md section 4.8: same Kind, ScheduleTime within
// 30s, IntTime within 1ms, |RefInterval delta| <= 5.
func (s *Service) dedup() {
	keep := make([]bool, len(s.tasks))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(s.tasks); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(s.tasks); j++ {
			if !keep[j] {
				continue
			}
			if !similar(s.tasks[i], s.tasks[j]) {
				continue
			}
			drop, kept := j, i
			if s.tasks[j].SubmitTime.Before(s.tasks[i].SubmitTime) {
				drop, kept = i, j
			}
			log.Printf("WARNING: scheduler: discarding duplicate task id=%d (kept id=%d)", s.tasks[drop].ID, s.tasks[kept].ID)
			keep[drop] = false
			if drop == i {
				break
			}
		}
	}
	out := s.tasks[:0]
	for i, t := range s.tasks {
		if keep[i] {
			out = append(out, t)
		}
	}
	s.tasks = out
}

func similar(a, b *task.Task) bool {
	if a.Kind != b.Kind {
		return false
	}
	delta := a.ScheduleTime.Sub(b.ScheduleTime)
	if delta < 0 {
		delta = -delta
	}
	if delta > dedupStartWindow {
		return false
	}
	intDelta := a.IntTime - b.IntTime
	if intDelta < 0 {
		intDelta = -intDelta
	}
	if float64(intDelta) > dedupIntTimeDelta {
		return false
	}
	refDelta := a.RefInterval - b.RefInterval
	if refDelta < 0 {
		refDelta = -refDelta
	}
	return refDelta <= dedupRefDelta
}

// drainStale discards any messages left queued at the mailbox path by
// a prior run, per spec.md section 4.8 "Startup". A fresh socket
// cannot retain datagrams across process exits on Linux, but a stale
// file left by an unclean shutdown is removed by mailbox.Listen
// itself; drainStale also guards the case of another process having
// queued messages in the brief window before this Service bound the
// socket.
func (s *Service) drainStale() {
	discarded := 0
	for {
		m, ok, err := s.mb.Recv()
		if err != nil || !ok {
			break
		}
		_ = m
		discarded++
		if discarded >= mailbox.MaxQueueBacklog {
			break
		}
	}
	if discarded > 0 {
		log.Printf("scheduler: discarded %d stale mailbox message(s) from a prior run", discarded)
	}
}

// Tasks returns a shallow copy of the live task list, for introspection.
func (s *Service) Tasks() []*task.Task {
	out := make([]*task.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}
