package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tjun/eol/internal/config"
	"github.com/tjun/eol/internal/localizer"
	"github.com/tjun/eol/internal/newline"
	"github.com/tjun/eol/internal/watch"
	"github.com/urfave/cli/v3"
)

const stdinPath = "<stdin>"

// flags defines the CLI flags for the eol command.
var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "newline",
		Aliases: []string{"n"},
		Usage:   "Target newline: `lf`, crlf, cr, native, or an escaped literal such as \\r\\n (default: native)",
	},
	&cli.StringSliceFlag{
		Name:  "include",
		Usage: "Only process files inside directories whose path or name matches `GLOB` (repeatable)",
	},
	&cli.StringSliceFlag{
		Name:  "exclude",
		Usage: "Skip files and directories matching `GLOB`; a trailing / matches directories only (repeatable)",
	},
	&cli.BoolFlag{
		Name:  "dry-run",
		Usage: "List files that would be changed and exit with non-zero status if there are any",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Read newline, include and exclude from an HCL or YAML `FILE`; flags take precedence",
	},
	&cli.BoolFlag{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Keep running and localize files in the given directories as they change",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Log every file and the newlines found in it",
	},
}

// GetFlags returns the flags for the eol command.
func GetFlags() []cli.Flag {
	return flags
}

// NewCommand returns the eol root command.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:      "eol",
		Usage:     "Convert the line endings of text files to a single newline style",
		ArgsUsage: "[PATH...]",
		Flags:     GetFlags(),
		Action:    EolAction,
	}
}

// settings is the effective configuration after merging the config file and flags.
type settings struct {
	newline string
	include []string
	exclude []string
}

func resolveSettings(cmd *cli.Command) (settings, error) {
	var cfg config.Config
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return settings{}, err
		}
		cfg = loaded
	}
	if cmd.IsSet("newline") {
		cfg.Newline = cmd.String("newline")
	}
	if cmd.IsSet("include") {
		cfg.Include = cmd.StringSlice("include")
	}
	if cmd.IsSet("exclude") {
		cfg.Exclude = cmd.StringSlice("exclude")
	}
	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	nl, err := newline.Parse(cfg.Newline)
	if err != nil {
		return settings{}, err
	}
	return settings{newline: nl, include: cfg.Include, exclude: cfg.Exclude}, nil
}

func newLogger(cmd *cli.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(errWriter(cmd))
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if cmd.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// EolAction defines the core action for the eol command.
func EolAction(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()

	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return cli.Exit(fmt.Sprintf("Error: Flag '%s' found after path arguments. Please place flags before path arguments.", arg), 2)
		}
	}

	st, err := resolveSettings(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	log := newLogger(cmd)
	opts := localizer.Options{Newline: st.newline, Logger: log}
	if len(st.include) > 0 || len(st.exclude) > 0 {
		opts.Filter = config.Config{Include: st.include, Exclude: st.exclude}.Glob()
	}
	loc := localizer.New(opts)
	dryRun := cmd.Bool("dry-run")
	out := writer(cmd)

	if len(args) == 0 {
		if !isInputFromPipe() {
			log.Info("No input paths specified and no data piped from stdin.")
			return nil
		}
		return processStdin(loc, out, dryRun)
	}

	hasErrors := false
	total := 0
	var wouldChange []string
	var dirs []string

	for _, path := range args {
		log.Debugf("Processing: %s", path)

		info, err := os.Stat(path)
		if err != nil {
			log.Errorf("Error: %v: %v", localizer.ErrInvalidInput, err)
			hasErrors = true
			continue
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}

		if dryRun {
			changed, err := check(loc, log, path, info.IsDir())
			if err != nil {
				log.Errorf("Error checking %s: %v", path, err)
				hasErrors = true
			}
			wouldChange = append(wouldChange, changed...)
			continue
		}

		n, err := loc.Localize(path)
		total += n
		if err != nil {
			log.Errorf("Error localizing %s: %v", path, err)
			hasErrors = true
			continue
		}
		if n == 0 {
			log.Debugf("No changes for %s", path)
		} else {
			log.Debugf("Localized %d file(s) in %s", n, path)
		}
	}

	if dryRun {
		for _, p := range wouldChange {
			fmt.Fprintln(out, p)
		}
	} else {
		fmt.Fprintf(out, "Localized %d file(s)\n", total)
	}

	if hasErrors {
		return cli.Exit("Encountered errors during processing.", 2)
	}
	if dryRun && len(wouldChange) > 0 {
		return cli.Exit("Changes would be made.", 1)
	}

	if cmd.Bool("watch") && !dryRun {
		return runWatch(ctx, loc, log, dirs)
	}
	return nil
}

// check returns the files under path (or path itself) that are not localized.
func check(loc *localizer.Localizer, log logrus.FieldLogger, path string, isDir bool) ([]string, error) {
	var files []string
	if isDir {
		rels, err := loc.Find(path)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			files = append(files, filepath.Join(path, filepath.FromSlash(rel)))
		}
	} else {
		ok, err := loc.IsLocalized(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			files = append(files, path)
		}
	}

	for _, f := range files {
		entry := log.WithField("path", f)
		if content, err := os.ReadFile(f); err == nil {
			entry = entry.WithField("found", newline.Count(content).String())
		}
		entry.Infof("File %s would be changed.", f)
	}
	return files, nil
}

// processStdin localizes piped input and writes the result to out.
func processStdin(loc *localizer.Localizer, out io.Writer, dryRun bool) error {
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}

	localized := newline.Normalize(content, loc.Newline())
	if dryRun {
		if !bytes.Equal(localized, content) {
			fmt.Fprintln(out, stdinPath)
			return cli.Exit("Changes would be made.", 1)
		}
		return nil
	}
	if _, err := out.Write(localized); err != nil {
		return cli.Exit(fmt.Sprintf("Error writing to stdout: %v", err), 2)
	}
	return nil
}

func runWatch(ctx context.Context, loc *localizer.Localizer, log logrus.FieldLogger, dirs []string) error {
	if len(dirs) == 0 {
		return cli.Exit("Error: --watch needs at least one directory argument.", 2)
	}
	w, err := watch.New(loc, log, dirs...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	log.Infof("Watching %s", strings.Join(dirs, ", "))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	return nil
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// isInputFromPipe checks if the program is receiving input from a pipe.
var isInputFromPipe = func() bool {
	fileInfo, _ := os.Stdin.Stat()
	return fileInfo != nil && (fileInfo.Mode()&os.ModeCharDevice) == 0
}
