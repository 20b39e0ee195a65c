package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/internal/pipeline"
	"github.com/blackrockforest/forestdata/pkg/config"
	"github.com/blackrockforest/forestdata/pkg/logger"
	"github.com/blackrockforest/forestdata/pkg/metrics"
	"github.com/blackrockforest/forestdata/pkg/observability"
)

const envPrefix = "FORESTDATA"

// Settings keys shared by flags and FORESTDATA_* variables.
const (
	keyConfig    = "config"
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
	keyTimeout   = "timeout"
	keyReport    = "report"
	keyTextfile  = "metrics-textfile"
	keyTrace     = "trace-exporter"
	keyOutput    = "output"
)

// runOptions are the settings of one run or process invocation, resolved
// from flags, environment and the configuration file.
type runOptions struct {
	cfg        *config.Config
	timeout    time.Duration
	reportPath string
	textfile   string
	exporter   string
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "forestdata",
		Short: "forestdata - Black Rock Forest sensor data pipeline",
		Long: `forestdata turns dendrometer and environmental station exports into
cleaned, time-windowed CSV files with per-row statistics and radial growth
deltas. Datasets are described in a YAML configuration file.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringP(keyConfig, "c", "forestdata.yaml", "Path to the YAML configuration file")
	flags.String(keyLogLevel, "", "Log level (debug, info, warn, error); overrides logging.level")
	flags.String(keyLogFormat, "", "Log encoding (json, console); overrides logging.format")
	flags.Duration(keyTimeout, 10*time.Minute, "Maximum duration of a run")
	for _, key := range []string{keyConfig, keyLogLevel, keyLogFormat, keyTimeout} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(
		newRunCommand(v),
		newProcessCommand(v),
		newListCommand(v),
		newConfigCommand(v),
		newVersionCommand(),
	)
	return root
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String(keyReport, "", "Write a JSON run report to this path")
	cmd.Flags().String(keyTextfile, "", "Write Prometheus metrics to this textfile; overrides metrics.textfile")
	cmd.Flags().String(keyTrace, "", "Span exporter (none, stdout); overrides tracing.exporter")
}

// bindRunFlags binds the run flags of the executing command. run and
// process share the keys, so binding happens at execution time.
func bindRunFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, key := range []string{keyReport, keyTextfile, keyTrace} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every configured dataset",
		Long: `Process every configured dataset in configuration order. A failing
dataset does not stop the others; the command exits non-zero if any failed.

Example:
  forestdata run --config forestdata.yaml --report /var/log/forestdata/last-run.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets(cmd, v, nil)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newProcessCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <dataset>...",
		Short: "Process the named datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets(cmd, v, args)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newListCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return printDatasets(cmd.OutOrStdout(), cfg)
		},
	}
}

func newConfigCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration as it is used for a run: defaults applied and
${VAR} references expanded. With --output the result is saved to a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			output, _ := cmd.Flags().GetString(keyOutput)
			if output == "" {
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := config.Save(output, cfg); err != nil {
				return err
			}
			logger.Info("configuration saved", zap.String("path", output))
			return nil
		},
	}
	cmd.Flags().StringP(keyOutput, "o", "", "Save the effective configuration to this path")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "forestdata v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// loadConfig loads the configuration and installs the global logger from
// its logging section. --log-level and --log-format take precedence.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString(keyConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if s := v.GetString(keyLogLevel); s != "" {
		level = s
	}
	if s := v.GetString(keyLogFormat); s != "" {
		format = s
	}
	if err := logger.Init(logger.Config{Level: level, Encoding: format}); err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		zap.String("path", path),
		zap.Int("datasets", len(cfg.Datasets)))
	return cfg, nil
}

func resolveOptions(v *viper.Viper) (*runOptions, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}

	opts := &runOptions{
		cfg:        cfg,
		timeout:    v.GetDuration(keyTimeout),
		reportPath: v.GetString(keyReport),
		textfile:   cfg.Metrics.Textfile,
		exporter:   cfg.Tracing.Exporter,
	}
	if s := v.GetString(keyTextfile); s != "" {
		opts.textfile = s
	}
	if s := v.GetString(keyTrace); s != "" {
		opts.exporter = s
	}
	return opts, nil
}

// runDatasets runs the named datasets, or all of them when names is empty,
// then writes the report and metrics textfile when configured.
func runDatasets(cmd *cobra.Command, v *viper.Viper, names []string) (err error) {
	if err := bindRunFlags(cmd, v); err != nil {
		return err
	}
	opts, err := resolveOptions(v)
	if err != nil {
		return err
	}

	defer func() { _ = logger.Sync() }()

	tracer, err := observability.NewTracer(observability.TracingConfig{
		ServiceName:    "forestdata",
		ServiceVersion: version,
		ExporterType:   opts.exporter,
		Output:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, tracer.Shutdown(shutdownCtx))
	}()

	collector := metrics.NewCollector()
	runner := pipeline.NewRunner(opts.cfg, pipeline.Deps{
		Logger:  logger.Get(),
		Metrics: collector,
		Tracer:  tracer,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	var report *pipeline.Report
	if len(names) == 0 {
		report, err = runner.Run(ctx)
	} else {
		report, err = runner.RunDatasets(ctx, names...)
	}
	if report == nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if report.Failed > 0 {
		logger.Warn("run finished with failures",
			zap.Int("failed", report.Failed),
			zap.Int("succeeded", report.Succeeded))
	}

	if opts.reportPath != "" {
		if werr := report.WriteFile(opts.reportPath); werr != nil {
			err = multierr.Append(err, werr)
		} else {
			logger.Info("run report written", zap.String("path", opts.reportPath))
		}
	}
	if opts.textfile != "" {
		if werr := collector.WriteTextfile(opts.textfile); werr != nil {
			err = multierr.Append(err, werr)
		} else {
			logger.Info("metrics textfile written", zap.String("path", opts.textfile))
		}
	}
	return err
}

func printReport(w io.Writer, r *pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSTATUS\tROWS\tOUTPUT")
	for _, d := range r.Datasets {
		rows := 0
		if len(d.Pipelines) > 0 {
			rows = d.Pipelines[len(d.Pipelines)-1].RowsWritten
		}
		status := d.Status
		if d.ErrorType != "" {
			status += " (" + d.ErrorType + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Name, status, rows, d.Output)
	}
	_ = tw.Flush()
}

func printDatasets(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tINPUT\tOUTPUT\tRDH")
	for _, d := range cfg.Datasets {
		rdh := "no"
		if d.RDH != nil {
			rdh = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Kind, cfg.InputPath(d), cfg.OutputPath(d), rdh)
	}
	return tw.Flush()
}
