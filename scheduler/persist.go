package scheduler

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mailbox"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/task"
)

// loadTasks restores the task list and the highest task id seen from
// path, written by saveTasks.
func loadTasks(path string) ([]*task.Task, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("scheduler: open %s: %w", path, err)
	}
	defer f.Close()

	var records []*mailbox.Record
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, 0, fmt.Errorf("scheduler: decode %s: %w", path, err)
	}
	tasks := make([]*task.Task, 0, len(records))
	var lastID int64
	for _, r := range records {
		t := r.ToTask()
		tasks = append(tasks, t)
		if t.ID > lastID {
			lastID = t.ID
		}
	}
	return tasks, lastID, nil
}

// saveTasks dumps the task list to path as a gob-encoded slice of
// Records, overwriting any prior content. A temp-file-then-rename
// sequence keeps a crash mid-write from truncating the live file.
// The on-disk layout is gob (length-delimited, self-describing), not
// the little-endian count-plus-records dump of the firmware this
// replaces; the file is private to the scheduler, and dump-then-reload
// equality is what the service relies on (see DESIGN.md).
func saveTasks(path string, tasks []*task.Task) error {
	records := make([]*mailbox.Record, len(tasks))
	for i, t := range tasks {
		records[i] = mailbox.RecordFromTask(t)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("scheduler: create %s: %w", tmp, err)
	}
	if err := gob.NewEncoder(f).Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("scheduler: encode %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("scheduler: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("scheduler: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
