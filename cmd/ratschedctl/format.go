package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mailbox"
)

func trimField(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

func kindName(t int32) string {
	for name, k := range kindNames {
		if int32(k) == t {
			return name
		}
	}
	return "unknown"
}

// printTaskTable prints a human-readable listing, used by -l.
func printTaskTable(w io.Writer, recs []*mailbox.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "(no tasks)")
		return
	}
	fmt.Fprintf(w, "%-4s %-10s %3s %-19s %-12s %-8s %s\n", "ID", "TYPE", "PRI", "START", "USER", "STATUS", "COMMENT")
	for _, r := range recs {
		start := "-"
		if r.StartTime != 0 {
			start = time.Unix(r.StartTime, 0).Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-4d %-10s %3d %-19s %-12s %-8d %s\n",
			r.ID, kindName(r.Type), r.Priority, start, trimField(r.User[:]), r.Status, trimField(r.Comment[:]))
	}
}

// printTaskFile prints recs back out in the importable text format of
// spec.md section 6, used by -p.
func printTaskFile(w io.Writer, recs []*mailbox.Record) {
	for _, r := range recs {
		var buf bytes.Buffer
		if r.StartTime == 0 {
			buf.WriteString("*")
		} else {
			buf.WriteString(time.Unix(r.StartTime, 0).Format("2006/01/02 15:04:05"))
		}
		user := trimField(r.User[:])
		if user == "" {
			user = "*"
		}
		fmt.Fprintf(&buf, " %s %d %.3f %s %.6f %.6f %.6f %.6f %.6f %.6f %.3f %d %.3f",
			kindName(r.Type), r.Priority, r.AltPeriod, user,
			r.Coords1X, r.Coords1Y, r.Coords2X, r.Coords2Y,
			r.Step1, r.Step2, r.IntTime, r.RefCycle, r.Duration)
		if c := trimField(r.Comment[:]); c != "" {
			fmt.Fprintf(&buf, " %q", c)
		}
		fmt.Fprintln(w, buf.String())
	}
}
