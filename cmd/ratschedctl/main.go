/*Command ratschedctl is the scheduler CLI client (spec.md section 6
"Scheduler CLI"): it submits, lists, cancels, stops and erases tasks by
talking to a running ratsched over the mailbox, and can start one
itself with -d.
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mailbox"
)

// Exit codes, per spec.md section 6.
const (
	exitOK = iota
	exitBadQueueOrAdd
	exitAlreadyRunning
	exitUnhandledFault
)

// replyTimeout bounds how long the client waits for a server reply.
const replyTimeout = 2 * time.Second

func main() {
	listFlag := flag.Bool("l", false, "list tasks")
	reverseFlag := flag.Bool("r", false, "reverse sort order for -l/-p")
	exportFlag := flag.Bool("p", false, "export task list as text")
	keyFlag := flag.Int("k", 42, "mailbox queue key")
	addFlag := flag.String("a", "", "add tasks from file, or - for stdin")
	cancelFlag := flag.Int64("c", 0, "cancel task by id")
	stopFlag := flag.Int64("s", 0, "stop task by id")
	eraseFlag := flag.Int64("e", 0, "erase (delete) task by id")
	clearFlag := flag.Bool("E", false, "clear all tasks")
	daemonFlag := flag.Bool("d", false, "launch ratsched as a daemon and wait for it to come up")
	execPathFlag := flag.String("x", "", "executables path, passed to a newly started daemon (unused by the client otherwise)")
	dataPathFlag := flag.String("o", "", "data output path, passed to a newly started daemon (unused by the client otherwise)")
	verboseFlag := flag.Bool("v", false, "verbose output")
	flag.Parse()

	key := *keyFlag

	if *daemonFlag {
		os.Exit(runDaemon(key, *execPathFlag, *dataPathFlag))
	}

	mb, err := mailbox.Listen(mailbox.ClientSocketPath(key))
	if err != nil {
		color.Red("ratschedctl: binding reply socket: %v", err)
		os.Exit(exitBadQueueOrAdd)
	}
	defer mb.Close()

	serverPath := mailbox.SocketPath(key)
	sender := int32(os.Getpid())

	switch {
	case *addFlag != "":
		os.Exit(doAdd(mb, serverPath, sender, *addFlag, *verboseFlag))
	case *cancelFlag != 0:
		os.Exit(doSimple(mb, serverPath, sender, mailbox.Cancel, *cancelFlag))
	case *stopFlag != 0:
		os.Exit(doSimple(mb, serverPath, sender, mailbox.Stop, *stopFlag))
	case *eraseFlag != 0:
		os.Exit(doSimple(mb, serverPath, sender, mailbox.Delete, *eraseFlag))
	case *clearFlag:
		os.Exit(doSimple(mb, serverPath, sender, mailbox.Clear, 0))
	case *listFlag || *exportFlag:
		os.Exit(doList(mb, serverPath, sender, *reverseFlag, *exportFlag))
	default:
		os.Exit(doPing(mb, serverPath, sender))
	}
}

func doPing(mb *mailbox.Mailbox, serverPath string, sender int32) int {
	if err := mb.SendTo(serverPath, mailbox.Message{Recipient: mailbox.ServiceRecipient, Sender: sender, Action: mailbox.Ping}); err != nil {
		color.Red("ratschedctl: PING: %v", err)
		return exitBadQueueOrAdd
	}
	reply, ok, err := mb.RecvTimeout(replyTimeout)
	if err != nil || !ok {
		color.Red("ratschedctl: no reply from scheduler at key %v", serverPath)
		return exitBadQueueOrAdd
	}
	if reply.Action == mailbox.Ping {
		color.Green("ratschedctl: scheduler is alive")
	}
	return exitOK
}

func doSimple(mb *mailbox.Mailbox, serverPath string, sender int32, action mailbox.Action, id int64) int {
	msg := mailbox.Message{Recipient: mailbox.ServiceRecipient, Sender: sender, Action: action, SubAction: int32(id)}
	if err := mb.SendTo(serverPath, msg); err != nil {
		color.Red("ratschedctl: %s: %v", action, err)
		return exitBadQueueOrAdd
	}
	return exitOK
}

func doAdd(mb *mailbox.Mailbox, serverPath string, sender int32, path string, verbose bool) int {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			color.Red("ratschedctl: opening %s: %v", path, err)
			return exitBadQueueOrAdd
		}
		defer f.Close()
		r = f
	}

	recs, err := parseTaskFile(r)
	if err != nil {
		color.Red("ratschedctl: parsing task file: %v", err)
		return exitBadQueueOrAdd
	}
	for _, rec := range recs {
		msg := mailbox.Message{Recipient: mailbox.ServiceRecipient, Sender: sender, Action: mailbox.Add, Record: rec}
		if err := mb.SendTo(serverPath, msg); err != nil {
			color.Red("ratschedctl: ADD: %v", err)
			return exitBadQueueOrAdd
		}
		if verbose {
			fmt.Printf("submitted task type=%d start=%d\n", rec.Type, rec.StartTime)
		}
	}
	color.Green("ratschedctl: submitted %d task(s)", len(recs))
	return exitOK
}

func doList(mb *mailbox.Mailbox, serverPath string, sender int32, reverse, export bool) int {
	sub := int32(0)
	if reverse {
		sub = 1
	}
	msg := mailbox.Message{Recipient: mailbox.ServiceRecipient, Sender: sender, Action: mailbox.List, SubAction: sub}
	if err := mb.SendTo(serverPath, msg); err != nil {
		color.Red("ratschedctl: LIST: %v", err)
		return exitBadQueueOrAdd
	}

	var recs []*mailbox.Record
	for {
		reply, ok, err := mb.RecvTimeout(replyTimeout)
		if err != nil {
			color.Red("ratschedctl: LIST: %v", err)
			return exitBadQueueOrAdd
		}
		if !ok {
			color.Red("ratschedctl: LIST: timed out waiting for scheduler")
			return exitBadQueueOrAdd
		}
		if reply.SeriesCount == 0 {
			break
		}
		if reply.Record != nil {
			recs = append(recs, reply.Record)
		}
		if reply.SeriesID >= reply.SeriesCount {
			break
		}
	}

	if export {
		printTaskFile(os.Stdout, recs)
	} else {
		printTaskTable(os.Stdout, recs)
	}
	return exitOK
}

// runDaemon forks ratsched in the background and waits, with a
// yacspin progress spinner, for its mailbox socket to appear.
func runDaemon(key int, execPath, dataPath string) int {
	cmd := exec.Command("ratsched")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("RATSCHED_KEY=%d", key),
		"RATSCHED_EXEC_PATH="+execPath,
		"RATSCHED_DATA_PATH="+dataPath,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		color.Red("ratschedctl: starting ratsched: %v", err)
		return exitAlreadyRunning
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " waiting for ratsched to come up",
		SuffixAutoColon: true,
		StopMessage:     "ratsched is up",
		StopColors:      []string{"fgGreen"},
	})
	if err == nil {
		spinner.Start()
	}

	sockPath := mailbox.SocketPath(key)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, statErr := os.Stat(sockPath); statErr == nil {
			if spinner != nil {
				spinner.Stop()
			}
			return exitOK
		}
		time.Sleep(100 * time.Millisecond)
	}
	if spinner != nil {
		spinner.StopFailMessage("timed out waiting for ratsched")
		spinner.StopFail()
	}
	return exitAlreadyRunning
}
