package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Flake is an action whose replays mismatched in at least one run.
type Flake struct {
	Index        int         `json:"index"`
	Kind         action.Kind `json:"kind"`
	MismatchRuns int         `json:"mismatchRuns"`
	Reasons      []string    `json:"reasons"`
}

// FlakeReport is the outcome of replaying a trace several times.
type FlakeReport struct {
	Runs    int       `json:"runs"`
	Mode    Mode      `json:"mode"`
	Flakes  []Flake   `json:"flakes"`
	Reports []*Report `json:"reports"`
}

// DetectFlakesFile loads a trace file and runs DetectFlakes on it.
func DetectFlakesFile(ctx context.Context, launcher browser.Launcher, path string, runs int, opts Options) (*FlakeReport, error) {
	t, err := trace.Load(path)
	if err != nil {
		return nil, err
	}
	return DetectFlakes(ctx, launcher, t, runs, opts)
}

// DetectFlakes replays t runs times (at least 2) and counts, per action
// index, the runs that produced any mismatch. Only the first run preflights.
// Flakes are sorted by mismatch count, most first, then by index.
func DetectFlakes(ctx context.Context, launcher browser.Launcher, t *trace.SavedTrace, runs int, opts Options) (*FlakeReport, error) {
	if runs < 2 {
		return nil, fmt.Errorf("flake detection needs at least 2 runs, got %d", runs)
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	report := &FlakeReport{Runs: runs, Mode: mode}
	byIndex := make(map[int]*Flake)
	for run := 0; run < runs; run++ {
		runOpts := opts
		if run > 0 {
			runOpts.SkipPreflight = true
		}
		r, err := Run(ctx, launcher, t, runOpts)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run+1, err)
		}
		report.Reports = append(report.Reports, r)

		counted := make(map[int]bool)
		for _, m := range r.Mismatches {
			f, ok := byIndex[m.Index]
			if !ok {
				f = &Flake{Index: m.Index, Kind: m.Kind}
				byIndex[m.Index] = f
			}
			if !counted[m.Index] {
				counted[m.Index] = true
				f.MismatchRuns++
			}
			if !contains(f.Reasons, m.Reason) {
				f.Reasons = append(f.Reasons, m.Reason)
			}
		}
	}

	report.Flakes = make([]Flake, 0, len(byIndex))
	for _, f := range byIndex {
		report.Flakes = append(report.Flakes, *f)
	}
	sort.Slice(report.Flakes, func(i, j int) bool {
		a, b := report.Flakes[i], report.Flakes[j]
		if a.MismatchRuns != b.MismatchRuns {
			return a.MismatchRuns > b.MismatchRuns
		}
		return a.Index < b.Index
	})
	return report, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
