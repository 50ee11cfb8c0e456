package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mailbox"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/task"
)

// kindNames maps the text task-file "mode" field (spec.md section 6)
// to a task.Kind.
var kindNames = map[string]task.Kind{
	"drift":       task.Drift,
	"track":       task.Track,
	"horscan":     task.HorScan,
	"equscan":     task.EquScan,
	"gotohor":     task.GotoHor,
	"gotoequ":     task.GotoEqu,
	"park":        task.Park,
	"unpark":      task.Unpark,
	"maintenance": task.Maintenance,
}

// parseTaskFile reads the whitespace-separated text task-file format
// of spec.md section 6 from r, returning one Record per non-comment,
// non-blank line. "*" in any field means "don't care / default" and
// leaves the corresponding Record field zero.
func parseTaskFile(r io.Reader) ([]*mailbox.Record, error) {
	var out []*mailbox.Record
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseTaskLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldTokenizer splits a task line on whitespace while keeping a
// trailing double-quoted comment as one token.
func fieldTokenizer(line string) []string {
	var fields []string
	if idx := strings.IndexByte(line, '"'); idx >= 0 {
		fields = strings.Fields(line[:idx])
		comment := strings.Trim(line[idx:], "\"")
		fields = append(fields, `"`+comment+`"`)
		return fields
	}
	return strings.Fields(line)
}

func parseTaskLine(line string) (*mailbox.Record, error) {
	fields := fieldTokenizer(line)
	if len(fields) < 1 {
		return nil, fmt.Errorf("empty line")
	}

	// start_time is either "*" (one token) or "YYYY/MM/DD HH:MM:SS"
	// (two whitespace-separated tokens), so it is consumed specially
	// before the rest of the fixed-width fields.
	var startTime time.Time
	var err error
	rest := fields
	if fields[0] == "*" {
		rest = fields[1:]
	} else {
		if len(fields) < 2 {
			return nil, fmt.Errorf("truncated start_time")
		}
		startTime, err = parseStartTime(fields[0] + " " + fields[1])
		if err != nil {
			return nil, fmt.Errorf("start_time: %w", err)
		}
		rest = fields[2:]
	}

	if len(rest) < 13 {
		return nil, fmt.Errorf("expected at least 13 more fields, got %d", len(rest))
	}

	kind, ok := kindNames[strings.ToLower(rest[0])]
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", rest[0])
	}
	priority, err := parseIntField(rest[1])
	if err != nil {
		return nil, fmt.Errorf("priority: %w", err)
	}
	altPeriodHours, err := parseFloatField(rest[2])
	if err != nil {
		return nil, fmt.Errorf("alt_period: %w", err)
	}
	user := rest[3]
	if user == "*" {
		user = ""
	}

	floats := make([]float64, 8)
	names := []string{"x1", "y1", "x2", "y2", "step1", "step2", "int_time", "ref_cycle"}
	for i, name := range names {
		v, err := parseFloatField(rest[4+i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		floats[i] = v
	}
	maxDuration, err := parseFloatField(rest[12])
	if err != nil {
		return nil, fmt.Errorf("max_duration: %w", err)
	}

	comment := ""
	if len(rest) > 13 {
		comment = strings.Trim(strings.Join(rest[13:], " "), `"`)
	}

	rec := &mailbox.Record{
		Type:      int32(kind),
		Priority:  int32(priority),
		AltPeriod: altPeriodHours,
		Coords1X:  floats[0],
		Coords1Y:  floats[1],
		Coords2X:  floats[2],
		Coords2Y:  floats[3],
		Step1:     floats[4],
		Step2:     floats[5],
		IntTime:   floats[6],
		RefCycle:  int32(floats[7]),
		Duration:  maxDuration,
	}
	if !startTime.IsZero() {
		rec.StartTime = startTime.Unix()
	}
	copy(rec.User[:], user)
	copy(rec.Comment[:], comment)
	return rec, nil
}

func parseStartTime(s string) (time.Time, error) {
	if s == "*" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006/01/02 15:04:05", s, time.Local)
}

func parseIntField(s string) (int, error) {
	if s == "*" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseFloatField(s string) (float64, error) {
	if s == "*" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
