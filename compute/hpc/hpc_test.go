package hpc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/wf"
)

func testTask(dir string) *compute.Task {
	return &compute.Task{
		ID:         "j1",
		WorkflowID: "wf1",
		Name:       "align",
		Command:    []string{"echo", "hello world"},
		WorkDir:    filepath.Join(dir, "wf1", "j1", "work"),
		Stdout:     filepath.Join(dir, "wf1", "j1", "stdout"),
		Stderr:     filepath.Join(dir, "wf1", "j1", "stderr"),
		Resources: wf.Resources{
			CPUCores: 4,
			RAMGb:    8,
			WallTime: "02:00:00",
			Queue:    "short",
		},
	}
}

func TestSubmitFileRendering(t *testing.T) {
	dir := t.TempDir()
	b := NewGridEngine(dir, "", logger.NewDiscard())

	submitPath, err := b.setupTemplatedSubmit(testTask(dir))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(submitPath) != "gridengine.submit" {
		t.Errorf("unexpected submit file name: %s", submitPath)
	}

	raw, err := os.ReadFile(submitPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)

	for _, want := range []string{
		"#$ -N j1",
		"#$ -q short",
		"#$ -l h_rt=02:00:00",
		"#$ -pe smp 4",
		"#$ -l h_vmem=8G",
		// Arguments with spaces survive shell quoting.
		`echo 'hello world'`,
		"echo $? > " + filepath.Dir(submitPath) + "/exitcode",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("submit file missing %q:\n%s", want, content)
		}
	}
}

func TestCondorSubmitFileRendering(t *testing.T) {
	dir := t.TempDir()
	b := NewHTCondor(dir, "", logger.NewDiscard())

	submitPath, err := b.setupTemplatedSubmit(testTask(dir))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(submitPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)

	for _, want := range []string{
		"executable     = echo",
		`arguments      = "'hello world'"`,
		"request_cpus = 4",
		"request_memory = 8.00 GB",
		"queue",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("submit file missing %q:\n%s", want, content)
		}
	}
}

func TestCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	b := NewSlurm(dir, "#!/bin/bash\n# custom {{.TaskId}}\n{{.Command}}\n", logger.NewDiscard())

	submitPath, err := b.setupTemplatedSubmit(testTask(dir))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(submitPath)
	if !strings.Contains(string(raw), "# custom j1") {
		t.Errorf("custom template not used:\n%s", raw)
	}
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		extract func(string) string
		in      string
		want    string
	}{
		{geExtractID, "Your job 1234 (\"gridengine.submit\") has been submitted\n", "1234"},
		{geExtractID, "qsub: error\n", ""},
		{slurmExtractID, "Submitted batch job 5678\n", "5678"},
		{slurmExtractID, "sbatch: error: invalid partition\n", ""},
		{pbsExtractID, "9012.pbshost\n", "9012.pbshost"},
		{pbsExtractID, "9012\n", "9012"},
		{condorExtractID, "Submitting job(s).\n1 job(s) submitted to cluster 42.\n", "42"},
		{condorExtractID, "ERROR: no schedd\n", ""},
	}
	for _, tt := range tests {
		if got := tt.extract(tt.in); got != tt.want {
			t.Errorf("extract(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinSplitID(t *testing.T) {
	id := joinID("1234.pbshost", "wf1", "j1")
	drmID, subKey := splitID(id)
	if drmID != "1234.pbshost" {
		t.Errorf("drmID: %q", drmID)
	}
	if subKey != "wf1/j1" {
		t.Errorf("subKey: %q", subKey)
	}

	// IDs recorded before a submit completed have no sub key.
	drmID, subKey = splitID("5678")
	if drmID != "5678" || subKey != "" {
		t.Errorf("bare ID split: %q %q", drmID, subKey)
	}
}

func TestPBSMapState(t *testing.T) {
	header := "Job id   Name   User  Time Use S Queue\n-------- ------ ----- -------- - -----\n"
	tests := []struct {
		out  string
		want compute.State
		ok   bool
	}{
		{header + "1.host   j1     me    0 Q short\n", compute.StateQueued, true},
		{header + "1.host   j1     me    0 H short\n", compute.StateQueued, true},
		{header + "1.host   j1     me    0 R short\n", compute.StateRunning, true},
		{header + "1.host   j1     me    0 E short\n", compute.StateRunning, true},
		{header + "1.host   j1     me    0 C short\n", compute.StateUnknown, false},
		{"", compute.StateUnknown, false},
	}
	for _, tt := range tests {
		st, ok := pbsMapState(tt.out, nil)
		if st != tt.want || ok != tt.ok {
			t.Errorf("pbsMapState(%q) = %s, %v; want %s, %v", tt.out, st, ok, tt.want, tt.ok)
		}
	}
}

func TestSlurmMapState(t *testing.T) {
	tests := []struct {
		out  string
		want compute.State
		ok   bool
	}{
		{"   PENDING \n", compute.StateQueued, true},
		{"RUNNING\n", compute.StateRunning, true},
		{"COMPLETED\n", compute.StateComplete, true},
		{"CANCELLED by 1000\n", compute.StateCanceled, true},
		{"FAILED\n", compute.StateFailed, true},
		{"TIMEOUT\n", compute.StateFailed, true},
		{"OUT_OF_ME+\n", compute.StateFailed, true},
		{"", compute.StateUnknown, false},
	}
	for _, tt := range tests {
		st, ok := slurmMapState(tt.out, nil)
		if st != tt.want || ok != tt.ok {
			t.Errorf("slurmMapState(%q) = %s, %v; want %s, %v", tt.out, st, ok, tt.want, tt.ok)
		}
	}
}

func TestCondorMapState(t *testing.T) {
	tests := []struct {
		out  string
		want compute.State
		ok   bool
	}{
		{"1", compute.StateQueued, true},
		{"2", compute.StateRunning, true},
		{"3", compute.StateCanceled, true},
		{"4", compute.StateComplete, true},
		{"5", compute.StateQueued, true},
		{"", compute.StateUnknown, false},
	}
	for _, tt := range tests {
		st, ok := condorMapState(tt.out, nil)
		if st != tt.want || ok != tt.ok {
			t.Errorf("condorMapState(%q) = %s, %v; want %s, %v", tt.out, st, ok, tt.want, tt.ok)
		}
	}
}

// exitFileBackend always reports the job gone from the queue so that
// Status must consult the exit file.
func exitFileBackend(dir string) *Backend {
	return &Backend{
		Name:       "test",
		StatusCmd:  "true",
		StatusArgs: func(string) []string { return nil },
		WorkDir:    dir,
		MapState: func(string, error) (compute.State, bool) {
			return compute.StateUnknown, false
		},
		Log: logger.NewDiscard(),
	}
}

func TestStatusExitFileFallback(t *testing.T) {
	dir := t.TempDir()
	b := exitFileBackend(dir)
	sub := filepath.Join(dir, "wf1", "j1")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	// No exit file yet.
	st, err := b.Status(context.Background(), "42 wf1/j1")
	if err != nil {
		t.Fatal(err)
	}
	if st != compute.StateUnknown {
		t.Errorf("state without exit file: %s", st)
	}

	os.WriteFile(filepath.Join(sub, exitFileName), []byte("0\n"), 0644)
	if st, _ = b.Status(context.Background(), "42 wf1/j1"); st != compute.StateComplete {
		t.Errorf("state with zero exit code: %s", st)
	}

	os.WriteFile(filepath.Join(sub, exitFileName), []byte("3\n"), 0644)
	if st, _ = b.Status(context.Background(), "42 wf1/j1"); st != compute.StateFailed {
		t.Errorf("state with nonzero exit code: %s", st)
	}

	os.WriteFile(filepath.Join(sub, exitFileName), []byte("garbage"), 0644)
	if st, _ = b.Status(context.Background(), "42 wf1/j1"); st != compute.StateUnknown {
		t.Errorf("state with unreadable exit code: %s", st)
	}
}
