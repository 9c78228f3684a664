// Package cli implements the hmd command line: the root command with its
// global flags, configuration and logger initialisation, and the generate,
// classes and version subcommands.
package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/hmd/internal/application/structgen"
	"github.com/turtacn/hmd/internal/config"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo holds version information injected at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
	Workers      int
	Dedup        string
	Kafka        bool
	Postgres     bool
	Upload       bool
	Metrics      bool
	Listen       string
}

// CLIContext carries initialised dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// ServiceFactory builds the generation service for a command invocation.
// The returned closer releases its backends.
type ServiceFactory func(ctx context.Context, cc *CLIContext) (structgen.Service, io.Closer, error)

// DefaultServiceFactory connects the backends enabled in the configuration.
func DefaultServiceFactory(ctx context.Context, cc *CLIContext) (structgen.Service, io.Closer, error) {
	backends, closer, err := structgen.OpenBackends(ctx, cc.Config, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	svc := structgen.NewService(backends, structgen.Options{Workers: cc.Config.Generator.Workers}, cc.Logger)

	addr := cc.Config.Metrics.ListenAddr
	if addr == "" {
		return svc, closer, nil
	}
	mon, err := startMonitor(addr, backends, cc.Logger)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return svc, closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), monitorShutdownTimeout)
		defer cancel()
		return stderrors.Join(mon.Shutdown(ctx), closer.Close())
	}), nil
}

// NewRootCommand creates the root command with all global flags and
// subcommands.  A nil factory selects DefaultServiceFactory.
func NewRootCommand(factory ServiceFactory) *cobra.Command {
	if factory == nil {
		factory = DefaultServiceFactory
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hmd",
		Short: "hmd generates saturated molecular structures from a molecular formula",
		Long: "hmd enumerates every saturated, connected, non-isomorphic structure for a\n" +
			"list of atoms with implicit hydrogen counts, e.g. C3C3C2C2C1C1, and writes\n" +
			"them to an SD file.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./hmd.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "print progress messages and debug logs")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "abort the run after this duration (0 disables)")
	pf.IntVar(&opts.Workers, "workers", 0, "working-set members saturated in parallel")
	pf.StringVar(&opts.Dedup, "dedup", "", "identity set backend (memory, redis)")
	pf.BoolVar(&opts.Kafka, "kafka", false, "publish accepted structures to Kafka")
	pf.BoolVar(&opts.Postgres, "postgres", false, "record runs and structures in PostgreSQL")
	pf.BoolVar(&opts.Upload, "upload", false, "upload the SD file to object storage")
	pf.BoolVar(&opts.Metrics, "metrics", false, "export run metrics")
	pf.StringVar(&opts.Listen, "listen", "", "serve /metrics, /healthz and /readyz on this address during a run")

	cmd.AddCommand(
		NewGenerateCmd(factory),
		NewClassesCmd(factory),
		NewVersionCmd(),
	)
	return cmd
}

// persistentPreRun initialises config and logger, then stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := initConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "logger initialization failed")
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads configuration with priority flags > env > file > defaults.
func initConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Generator.Workers = opts.Workers
	}
	if flags.Changed("dedup") {
		cfg.Dedup.Backend = strings.ToLower(opts.Dedup)
	}
	if flags.Changed("kafka") {
		cfg.Kafka.Enabled = opts.Kafka
	}
	if flags.Changed("postgres") {
		cfg.Postgres.Enabled = opts.Postgres
	}
	if flags.Changed("upload") {
		cfg.MinIO.Enabled = opts.Upload
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = opts.Metrics
	}
	if flags.Changed("listen") {
		cfg.Metrics.ListenAddr = opts.Listen
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid flags")
	}
	return cfg, nil
}

// initLogger creates a logger configured for CLI usage (output to stderr).
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           cfg.Log.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.  SIGINT and
// SIGTERM cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand(nil)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err == nil && strings.EqualFold(cliCtx.OutputFormat, "json") {
		return printJSON(cmd, data)
	}
	return printText(cmd, data)
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// PrintError writes a formatted error message to stderr.  Errors caused by
// user input are followed by a pointer to the command's help.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
	if errors.IsInputError(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
