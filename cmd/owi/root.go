package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmkit/owi/internal/logging"
	"github.com/wasmkit/owi/internal/tracing"
)

// Version is this build's own semantic version, compared against a
// loaded module's "producers" custom section (when present) to decide
// whether to print a compatibility warning. Overridable via -ldflags
// the way tecch-wiz-hintents's cmd/erst version.go does for its own
// Version/CommitSHA/BuildDate.
var Version = "0.1.0-dev"

var (
	debugFlag      bool
	optimizeFlag   bool
	profilingFlag  bool
	noColorFlag    bool
	otlpEndpoint   string
	tracerShutdown tracing.Shutdown
)

var rootCmd = &cobra.Command{
	Use:   "owi",
	Short: "Decode, link, and interpret WebAssembly modules",
	Long: `owi decodes, statically validates, links, and interprets Wasm 1.0
modules against a pluggable value algebra — concrete execution by
default, or symbolic exploration via the sym subcommand.

Examples:
  owi run add.wasm --invoke add 1 2
  owi script suite.json
  owi sym div.wasm --invoke div --interactive`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(debugFlag)
		if err != nil {
			return err
		}
		logging.SetLogger(logger)

		shutdown, err := tracing.Init(context.Background(), tracing.Config{
			Enabled:     profilingFlag,
			ExporterURL: otlpEndpoint,
			ServiceName: "owi",
		})
		if err != nil {
			return err
		}
		tracerShutdown = shutdown

		if noColorFlag {
			color.NoColor = true
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if tracerShutdown == nil {
			return nil
		}
		ctx, cancel := tracing.WithTimeout(context.Background())
		defer cancel()
		return tracerShutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable verbose development logging")
	rootCmd.PersistentFlags().BoolVar(&optimizeFlag, "optimize", false, "fold constant offset expressions before linking")
	rootCmd.PersistentFlags().BoolVar(&profilingFlag, "profiling", false, "export pipeline-stage spans via OTLP/HTTP")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored terminal output")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4318", "OTLP/HTTP collector endpoint used when --profiling is set")
}

func logDebug(msg string, fields ...zap.Field) {
	logging.L().Debug(msg, fields...)
}
