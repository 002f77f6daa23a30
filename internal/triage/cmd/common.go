package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triage/internal/analysis"
	"triage/internal/config"
	"triage/internal/loader"
	"triage/internal/logging"
	"triage/internal/passes"
	"triage/internal/report"
	"triage/internal/triage/log"
	"triage/internal/triage/styles"
)

// options is the environment configuration with command-line flags applied.
type options struct {
	cfg        config.Config
	noColor    bool
	maxResults int
	tablesDir  string
	open       loader.Options
}

// setup runs before every command: it changes directory, reads the
// environment and installs the slog logger.
func setup(cmd *cobra.Command, _ []string) error {
	if _, err := ResolveCwd(cmd); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}

	logFile := ""
	if cfg.LogToFile {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		logFile = logging.LogFileName(cfg.LogDir, time.Now())
	}
	if err := log.Setup(logFile, cfg); err != nil {
		return err
	}
	slog.Debug("Configuration loaded", "level", cfg.LogLevel, "log_file", logFile, "tables", cfg.TablesDir)
	return nil
}

func optionsFrom(cmd *cobra.Command) (options, error) {
	cfg, err := config.Load()
	if err != nil {
		return options{}, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	opts := options{
		cfg:        cfg,
		maxResults: cfg.MaxResults,
		tablesDir:  cfg.TablesDir,
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	opts.noColor = noColor || cfg.NoColor || os.Getenv("NO_COLOR") != "" || !term.IsTerminal(os.Stdout.Fd())
	color.NoColor = opts.noColor
	if opts.noColor {
		styles.Plain()
	}

	if cmd.Flags().Changed("max-results") {
		n, _ := cmd.Flags().GetInt("max-results")
		if n < 0 {
			return options{}, fmt.Errorf("--max-results must not be negative, got %d", n)
		}
		opts.maxResults = n
	}
	if dir, _ := cmd.Flags().GetString("tables"); dir != "" {
		opts.tablesDir = dir
	}

	typ, _ := cmd.Flags().GetString("type")
	format, err := loader.ParseFormat(typ)
	if err != nil {
		return options{}, err
	}
	opts.open.Format = format
	opts.open.Arch, _ = cmd.Flags().GetString("arch")
	opts.open.Base, _ = cmd.Flags().GetUint64("base")
	return opts, nil
}

// registry returns the built-in passes, extended by the tables directory when
// one is configured.
func (o options) registry() (*passes.Registry, error) {
	if o.tablesDir == "" {
		return passes.Builtin()
	}
	reg, err := passes.WithDir(os.DirFS(o.tablesDir))
	if err != nil {
		return nil, fmt.Errorf("load tables from %s: %w", o.tablesDir, err)
	}
	return reg, nil
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// analyze opens path and runs the named passes, every pass when names is
// empty.
func analyze(ctx context.Context, path string, names []string, opts options) (*report.Document, error) {
	reg, err := opts.registry()
	if err != nil {
		return nil, err
	}
	selected, err := reg.Select(names, opts.maxResults)
	if err != nil {
		return nil, err
	}

	img, err := loader.Open(path, opts.open)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	info, err := report.NewFileInfo(path, img.Format(), img.Arch())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reports, err := analysis.NewPassChain(selected...).Run(ctx, img)
	if err != nil {
		return nil, err
	}
	slog.Debug("Analysis finished",
		"file", path,
		"format", info.Format,
		"passes", len(reports),
		"elapsed", time.Since(start))
	return report.New(info, reports), nil
}

func terminalWidth() int {
	w, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func renderMarkdown(md string, width int, noColor bool) string {
	return styles.RenderMarkdown(md, width-2, noColor)
}
