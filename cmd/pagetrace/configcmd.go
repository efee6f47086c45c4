package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/entrhq/pagetrace/pkg/config"
)

func configCommand(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var (
		configPath string
		jsonOutput bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration file (default ~/.pagetrace/config.json)")
	fs.BoolVar(&jsonOutput, "json", false, "Print settings as JSON")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pagetrace config [options] show|get KEY|set KEY VALUE|reset [SECTION]|path\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := config.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open configuration: %w", err)
	}
	return runConfig(m, fs.Args(), os.Stdout, jsonOutput)
}

// runConfig executes one config subcommand against m.
func runConfig(m *config.Manager, args []string, out io.Writer, jsonOutput bool) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "show":
		if jsonOutput {
			all := make(map[string]map[string]any)
			for _, s := range m.GetSections() {
				all[s.ID()] = s.Data()
			}
			return writeJSON(out, all)
		}
		renderConfig(out, m)
		return nil

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("config get needs KEY")
		}
		v, err := m.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		if len(args) != 2 {
			return fmt.Errorf("config set needs KEY VALUE")
		}
		if err := m.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := m.SaveAll(); err != nil {
			return err
		}
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s = %s saved to %s", args[0], args[1], m.Store().Path())))
		return nil

	case "reset":
		ids := args
		if len(ids) == 0 {
			for _, s := range m.GetSections() {
				ids = append(ids, s.ID())
			}
		}
		for _, id := range ids {
			if err := m.ResetSection(id); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, mutedStyle.Render("reset "+fmt.Sprint(ids)))
		return nil

	case "path":
		fmt.Fprintln(out, m.Store().Path())
		return nil
	}
	return fmt.Errorf("unknown config subcommand %q", sub)
}

func renderConfig(w io.Writer, m *config.Manager) {
	for i, s := range m.GetSections() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", headerStyle.Render(s.Title()), mutedStyle.Render("["+s.ID()+"]"))
		fmt.Fprintln(w, mutedStyle.Render(s.Description()))
		data := s.Data()
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s.%-20s %v\n", s.ID(), k, data[k])
		}
	}
}
