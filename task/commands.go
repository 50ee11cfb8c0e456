package task

import (
	"fmt"
	"os/exec"
	"path/filepath"
)

// buildCommands returns the os/exec.Cmd(s) to spawn for t, per the
// shell-invocation table of spec.md section 6. Most kinds spawn a
// single external observation program; GOTOHOR/GOTOEQU/PARK/UNPARK
// address the pointing controller through the remote-control surface
// instead (an external collaborator, out of scope here) and so spawn
// the configured remote-control client with the property assignment
// and the wait condition as arguments.
func buildCommands(t *Task) ([]*exec.Cmd, error) {
	datafile := filepath.Join(t.DataPath, t.DataFile)
	switch t.Kind {
	case Drift:
		return single(t, "rt_transitscan", driftArgs(t, datafile))
	case Track:
		return single(t, "rt_track", trackArgs(t, datafile))
	case HorScan:
		return single(t, "rt_scan_hor", horScanArgs(t, datafile))
	case EquScan:
		return single(t, "rt_scan_equ", equScanArgs(t, datafile))
	case GotoHor:
		return single(t, "rtctl", []string{"-set", fmt.Sprintf("AZ=%.6f;ALT=%.6f", t.Coords1.X, t.Coords1.Y), "-wait", "SCOPE_IDLE=1"})
	case GotoEqu:
		return single(t, "rtctl", []string{"-set", fmt.Sprintf("RA=%.6f;DEC=%.6f", t.Coords1.X, t.Coords1.Y), "-wait", "SCOPE_IDLE=1"})
	case Park:
		return single(t, "rtctl", []string{"-set", "PARK=On", "-wait", "SCOPE_PARKED=1"})
	case Unpark:
		return single(t, "rtctl", []string{"-set", "UNPARK=On", "-wait", "SCOPE_IDLE=1"})
	case Maintenance:
		secs := int(t.Duration.Seconds())
		if secs < 0 {
			secs = 0
		}
		return single(t, "sleep", []string{fmt.Sprint(secs)})
	default:
		return nil, fmt.Errorf("task: unknown kind %v", t.Kind)
	}
}

// single resolves name against t.ExecPath (when set) and returns a
// one-element slice wrapping the built *exec.Cmd.
func single(t *Task, name string, args []string) ([]*exec.Cmd, error) {
	path := name
	if t.ExecPath != "" {
		path = filepath.Join(t.ExecPath, name)
	}
	cmd := exec.Command(path, args...)
	return []*exec.Cmd{cmd}, nil
}

func intTimeArg(t *Task) []string {
	if t.IntTime <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("%.3f", t.IntTime.Seconds())}
}

func driftArgs(t *Task, datafile string) []string {
	args := []string{fmt.Sprintf("%.6f", t.Coords1.X), fmt.Sprintf("%.6f", t.Coords1.Y), datafile}
	return append(args, intTimeArg(t)...)
}

func trackArgs(t *Task, datafile string) []string {
	args := []string{fmt.Sprintf("%.6f", t.Coords1.X), fmt.Sprintf("%.6f", t.Coords1.Y), datafile}
	return append(args, intTimeArg(t)...)
}

func horScanArgs(t *Task, datafile string) []string {
	args := []string{
		fmt.Sprintf("%.6f", t.Coords1.X), fmt.Sprintf("%.6f", t.Coords2.X),
		fmt.Sprintf("%.6f", t.Coords1.Y), fmt.Sprintf("%.6f", t.Coords2.Y),
		datafile,
	}
	if t.Step1 == 0 && t.Step2 == 0 && t.IntTime <= 0 {
		return args
	}
	args = append(args, fmt.Sprintf("%.6f", t.Step1), fmt.Sprintf("%.6f", t.Step2))
	return append(args, intTimeArg(t)...)
}

func equScanArgs(t *Task, datafile string) []string {
	return horScanArgs(t, datafile)
}
