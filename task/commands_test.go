package task

import (
	"strings"
	"testing"
	"time"
)

func TestBuildCommandsArgs(t *testing.T) {
	cases := []struct {
		name     string
		task     *Task
		wantPath string
		wantArgs []string
	}{
		{
			name: "drift",
			task: &Task{Kind: Drift, Coords1: Coords{X: 90, Y: 45}, IntTime: 2 * time.Second, ExecPath: "/opt/bin", DataPath: "/data", DataFile: "task_d1_100"},
			wantPath: "/opt/bin/rt_transitscan",
			wantArgs: []string{"90.000000", "45.000000", "/data/task_d1_100", "2.000"},
		},
		{
			name:     "track",
			task:     &Task{Kind: Track, Coords1: Coords{X: 5.5, Y: -10}, DataFile: "task_t1_0"},
			wantPath: "rt_track",
			wantArgs: []string{"5.500000", "-10.000000", "task_t1_0"},
		},
		{
			name: "horscan with steps",
			task: &Task{Kind: HorScan, Coords1: Coords{X: 0, Y: 10}, Coords2: Coords{X: 20, Y: 30}, Step1: 1, Step2: 2, IntTime: time.Second, DataFile: "f"},
			wantPath: "rt_scan_hor",
			wantArgs: []string{"0.000000", "20.000000", "10.000000", "30.000000", "f", "1.000000", "2.000000", "1.000"},
		},
		{
			name:     "gotohor",
			task:     &Task{Kind: GotoHor, Coords1: Coords{X: 95, Y: 45}},
			wantPath: "rtctl",
			wantArgs: []string{"-set", "AZ=95.000000;ALT=45.000000", "-wait", "SCOPE_IDLE=1"},
		},
		{
			name:     "park",
			task:     &Task{Kind: Park},
			wantPath: "rtctl",
			wantArgs: []string{"-set", "PARK=On", "-wait", "SCOPE_PARKED=1"},
		},
		{
			name:     "maintenance",
			task:     &Task{Kind: Maintenance, Duration: 90 * time.Second},
			wantPath: "sleep",
			wantArgs: []string{"90"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmds, err := buildCommands(c.task)
			if err != nil {
				t.Fatalf("buildCommands: %v", err)
			}
			if len(cmds) != 1 {
				t.Fatalf("expected one command, got %d", len(cmds))
			}
			if cmds[0].Path != c.wantPath && !strings.HasSuffix(cmds[0].Path, "/"+c.wantPath) {
				t.Errorf("path = %q, want %q", cmds[0].Path, c.wantPath)
			}
			got := cmds[0].Args[1:]
			if len(got) != len(c.wantArgs) {
				t.Fatalf("args = %v, want %v", got, c.wantArgs)
			}
			for i := range got {
				if got[i] != c.wantArgs[i] {
					t.Errorf("arg[%d] = %q, want %q", i, got[i], c.wantArgs[i])
				}
			}
		})
	}
}

func TestBuildCommandsUnknownKind(t *testing.T) {
	_, err := buildCommands(&Task{Kind: Kind(99)})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
