package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/replay"
	"github.com/entrhq/pagetrace/pkg/session"
	"github.com/entrhq/pagetrace/pkg/trace"
)

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var (
		common      commonFlags
		tracePath   string
		saveSession string
		restore     string
		keepGoing   bool
	)
	common.register(fs)
	fs.StringVar(&tracePath, "trace", "", "Write the trace here (default <trace_dir>/<script>-<time>.trace.json)")
	fs.StringVar(&saveSession, "save-session", "", "Save cookies and storage under this name when done")
	fs.StringVar(&restore, "restore", "", "Start from a previously saved session")
	fs.BoolVar(&keepGoing, "keep-going", false, "Continue after a failed action")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run needs exactly one script file")
	}

	script, actions, err := loadScript(fs.Arg(0))
	if err != nil {
		return err
	}
	name := script.Name
	if trace.ValidateName(name) != nil {
		name = strings.TrimSuffix(filepath.Base(fs.Arg(0)), filepath.Ext(fs.Arg(0)))
		if trace.ValidateName(name) != nil {
			name = "run"
		}
	}

	e, err := common.setup(ctx, "run")
	if err != nil {
		return err
	}
	defer e.close()

	opts := e.sessionOptions()
	if err := script.Options.apply(&opts); err != nil {
		return err
	}

	manager := session.NewManager(e.launcher, opts)
	manager.SetMaxSessions(e.browser.MaxSessions)
	manager.SetIdleTimeout(e.browser.IdleTimeout)
	defer manager.CloseAll()

	var s *session.Session
	if restore != "" {
		s, err = manager.Restore(ctx, name, trace.SessionDir(e.browser.SessionsDir, restore))
	} else {
		s, err = manager.Start(ctx, name)
	}
	if err != nil {
		return err
	}

	failed := performAll(ctx, s, actions, keepGoing, os.Stdout, os.Stdin)

	if tracePath == "" {
		tracePath = filepath.Join(e.browser.TraceDir, fmt.Sprintf("%s-%s.trace.json", name, time.Now().UTC().Format("20060102-150405")))
	}
	saved, err := s.SaveTrace(ctx, tracePath)
	if err != nil {
		return err
	}
	if saveSession != "" {
		manifest, err := s.SaveSession(ctx, saveSession, e.browser.SessionsDir)
		if err != nil {
			return err
		}
		fmt.Println(mutedStyle.Render("session saved: " + manifest))
	}

	if common.jsonOutput {
		if err := writeJSON(os.Stdout, s.Results()); err != nil {
			return err
		}
	} else {
		renderRunSummary(os.Stdout, name, s.Results(), saved)
	}
	if failed {
		return errFailed
	}
	return nil
}

// performAll runs actions in order and reports whether any failed. A pause
// action without a duration blocks until the operator presses Enter.
func performAll(ctx context.Context, s *session.Session, actions []action.Action, keepGoing bool, out io.Writer, in io.Reader) bool {
	failed := false
	input := bufio.NewReader(in)
	for _, a := range actions {
		res, err := s.Perform(ctx, a)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			return true
		}
		renderResult(out, res)
		if !res.OK() {
			failed = true
			if !keepGoing {
				return true
			}
		}
		if state := s.ExecutionControlState(); state.Paused {
			fmt.Fprintf(out, "%s paused by %s, press Enter to resume\n", warnStyle.Render("||"), strings.Join(state.Sources, ","))
			if !waitForEnter(ctx, input) {
				return true
			}
			for _, src := range state.Sources {
				s.ResumeExecution(src)
			}
		}
	}
	return failed
}

func waitForEnter(ctx context.Context, in *bufio.Reader) bool {
	done := make(chan error, 1)
	go func() {
		_, err := in.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		return err == nil || err == io.EOF
	case <-ctx.Done():
		return false
	}
}

// replayFlags are shared by replay and flakes.
type replayFlags struct {
	commonFlags
	mode          string
	skipPreflight bool
	noSelectors   bool
	timeout       time.Duration
}

func (r *replayFlags) register(fs *flag.FlagSet) {
	r.commonFlags.register(fs)
	fs.StringVar(&r.mode, "mode", "strict", "Comparison mode: strict or relaxed")
	fs.BoolVar(&r.skipPreflight, "skip-preflight", false, "Do not probe required origins first")
	fs.BoolVar(&r.noSelectors, "no-selector-checks", false, "Skip wait-selector invariants in relaxed mode")
	fs.DurationVar(&r.timeout, "preflight-timeout", replay.DefaultPreflightTimeout, "Timeout for each preflight probe")
}

func (r *replayFlags) options(e *env) (replay.Options, error) {
	mode, err := replay.ParseMode(r.mode)
	if err != nil {
		return replay.Options{}, err
	}
	opts := replay.Options{
		Mode:                   mode,
		SkipPreflight:          r.skipPreflight,
		PreflightTimeout:       r.timeout,
		SkipSelectorInvariants: r.noSelectors,
		Logger:                 e.log.With("replay"),
		Metrics:                e.metrics,
	}
	if r.headed {
		launch := e.sessionOptions().Launch
		opts.Launch = &launch
	}
	return opts, nil
}

func replayCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	var flags replayFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("replay needs exactly one trace file")
	}

	e, err := flags.setup(ctx, "replay")
	if err != nil {
		return err
	}
	defer e.close()

	opts, err := flags.options(e)
	if err != nil {
		return err
	}
	report, err := replay.RunFile(ctx, e.launcher, fs.Arg(0), opts)
	if err != nil {
		return err
	}
	if flags.jsonOutput {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		renderReplay(os.Stdout, report)
	}
	if !report.OK() {
		return errFailed
	}
	return nil
}

func flakesCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("flakes", flag.ContinueOnError)
	var (
		flags replayFlags
		runs  int
	)
	flags.register(fs)
	fs.IntVar(&runs, "runs", 3, "Number of replays (at least 2)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("flakes needs exactly one trace file")
	}

	e, err := flags.setup(ctx, "flakes")
	if err != nil {
		return err
	}
	defer e.close()

	opts, err := flags.options(e)
	if err != nil {
		return err
	}
	report, err := replay.DetectFlakesFile(ctx, e.launcher, fs.Arg(0), runs, opts)
	if err != nil {
		return err
	}
	if flags.jsonOutput {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		renderFlakes(os.Stdout, report)
	}
	if len(report.Flakes) > 0 {
		return errFailed
	}
	return nil
}

func sessionsCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.setup(ctx, "sessions")
	if err != nil {
		return err
	}
	defer e.close()

	manifests, err := savedSessions(e.browser.SessionsDir)
	if err != nil {
		return err
	}
	if common.jsonOutput {
		return writeJSON(os.Stdout, manifests)
	}
	if len(manifests) == 0 {
		fmt.Println(mutedStyle.Render("no saved sessions in " + e.browser.SessionsDir))
		return nil
	}
	for _, m := range manifests {
		fmt.Printf("%-24s %s  %s\n", headerStyle.Render(m.Name), m.CreatedAt.Local().Format(time.DateTime), mutedStyle.Render(m.URL))
	}
	return nil
}

// savedSessions loads every manifest under root, sorted by name. Directories
// without a readable manifest are skipped.
func savedSessions(root string) ([]*trace.Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []*trace.Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, err := trace.LoadManifest(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
