package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skorper/harmony/internal/adapter/sqlite"
	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/domain"
	"github.com/skorper/harmony/internal/runner"
)

// isolate keeps config.Load away from the developer's files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	return dir
}

func TestJobIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://harmony.uat.earthdata.nasa.gov/jobs/abc-123", "abc-123"},
		{"http://localhost:3000/jobs/abc?page=1&limit=10", "abc"},
		{"http://localhost:3000/jobs/abc/#links", "abc"},
		{"/jobs/def", "def"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := jobIDFromURL(tt.url); got != tt.want {
				t.Errorf("jobIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestEffectiveScenarios(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "scenarios.yaml")
	doc := `
scenarios:
  - name: "ASF GDAL"
    disabled: true
  - name: "PODAAC L2SS Async"
    weight: 9
`
	if err := os.WriteFile(file, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.ScenariosFile = file
	cfg.Tags = []string{"async"}
	table, err := effectiveScenarios(cfg)
	if err != nil {
		t.Fatalf("effectiveScenarios() error = %v", err)
	}
	if len(table) != 4 {
		t.Fatalf("len = %d, want 4 async scenarios", len(table))
	}
	for _, s := range table {
		if s.Name == "PODAAC L2SS Async" && s.Weight != 9 {
			t.Errorf("weight = %d, want 9", s.Weight)
		}
	}

	cfg.Tags = nil
	cfg.ExcludeTags = nil
	table, err = effectiveScenarios(cfg)
	if err != nil {
		t.Fatalf("effectiveScenarios() error = %v", err)
	}
	if len(table) != 9 {
		t.Errorf("len = %d, want 9 with one disabled", len(table))
	}
}

func TestScenariosCommand(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"scenarios", "--tags", "zarr"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "NetCDF to Zarr single granule") || !strings.Contains(got, "2 scenarios") {
		t.Errorf("output = %q", got)
	}
	if strings.Contains(got, "ASF GDAL") {
		t.Errorf("output lists a filtered scenario: %q", got)
	}
}

func TestReport(t *testing.T) {
	dir := isolate(t)
	repo, err := sqlite.New(filepath.Join(dir, "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	ctx := context.Background()
	now := time.Now()
	for _, ms := range []int{10, 20, 30} {
		repo.RecordRequest(ctx, domain.RequestRecord{
			RunID: "r1", Name: "ASF GDAL", Method: "GET", URL: "http://x", StatusCode: 200,
			Elapsed: time.Duration(ms) * time.Millisecond, Timestamp: now,
		})
	}
	repo.RecordJob(ctx, domain.JobOutcome{RunID: "r1", Scenario: "Async", JobID: "j1", Status: domain.StatusSuccessful, Finished: now})
	repo.RecordJob(ctx, domain.JobOutcome{RunID: "r1", Scenario: "Async", Error: "timeout", Finished: now})

	var out bytes.Buffer
	if err := report(ctx, &out, repo, "r1"); err != nil {
		t.Fatalf("report() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"ASF GDAL", "20.00", "successful", "error"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	var out bytes.Buffer
	writeSummary(&out, &runner.Summary{
		RunID:      "r1",
		Executions: 4,
		Failures:   1,
		Jobs:       map[domain.JobStatus]int64{domain.StatusSuccessful: 2, domain.StatusFailed: 1},
		JobErrors:  1,
		Elapsed:    time.Second,
	})
	got := out.String()
	if !strings.Contains(got, "4 scenarios, 1 failed") || !strings.Contains(got, "jobs failed: 1") || !strings.Contains(got, "not awaited: 1") {
		t.Errorf("summary = %q", got)
	}
	if strings.Index(got, "jobs failed") > strings.Index(got, "jobs successful") {
		t.Errorf("statuses not sorted: %q", got)
	}
}
