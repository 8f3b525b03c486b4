// Package cli provides the designctl command-line interface, which runs the
// design pipeline locally without the HTTP server.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"archpipe/internal/config"
	"archpipe/internal/logging"
	"archpipe/internal/model"
	"archpipe/internal/service"
)

// GlobalFlags are shared by every sub-command
type GlobalFlags struct {
	Locale   string
	Hint     string
	Output   string // json or text
	LogLevel string
}

// pipelineFactory builds the pipeline for a command run. Tests replace it.
type pipelineFactory func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*service.Pipeline, io.Closer, error)

type app struct {
	flags   GlobalFlags
	build   pipelineFactory
	logger  zerolog.Logger
	version string
}

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	return newRootCmd(version, service.BuildPipeline).ExecuteContext(ctx)
}

func newRootCmd(version string, build pipelineFactory) *cobra.Command {
	a := &app{build: build, version: version}

	cmd := &cobra.Command{
		Use:   "designctl",
		Short: "Run the architectural design pipeline from the command line",
		Long: `designctl turns natural-language building descriptions into structured
design parameters and multi-agent analyses using the configured AI providers,
falling back to local analysis when none is available.

Configuration is read from the environment and an optional .env file,
exactly like the server.

Examples:
  designctl extract "30평 아파트, 침실 2개, 남향 거실"
  echo "two storey house, 150 m2" | designctl analyze --locale en --output text
  designctl hash "30평 아파트"`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.flags.Output {
			case "json", "text":
			default:
				return fmt.Errorf("unsupported output %q (json or text)", a.flags.Output)
			}
			a.logger, _ = logging.NewWithWriter(config.LoggingConfig{
				Level:  a.flags.LogLevel,
				Format: "console",
			}, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.Locale, "locale", "ko", "response locale (ko or en)")
	pf.StringVar(&a.flags.Hint, "building-type", "", "building type hint, e.g. APARTMENT")
	pf.StringVarP(&a.flags.Output, "output", "o", "json", "output format: json or text")
	pf.StringVar(&a.flags.LogLevel, "log-level", "warn", "log level written to stderr")

	addExtractCommand(cmd, a)
	addAnalyzeCommand(cmd, a)
	addHashCommand(cmd, a)
	return cmd
}

// pipeline loads configuration and builds the pipeline
func (a *app) pipeline(ctx context.Context) (*service.Pipeline, io.Closer, error) {
	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		return nil, nil, err
	}
	return a.build(ctx, cfg, a.logger)
}

// request builds a design request from args, reading stdin when args are empty
func (a *app) request(cmd *cobra.Command, args []string) (model.DesignRequest, error) {
	text := strings.Join(args, " ")
	if len(args) == 0 || text == "-" {
		if in, ok := cmd.InOrStdin().(*os.File); ok && in == os.Stdin && stdinIsTerminal() {
			return model.DesignRequest{}, fmt.Errorf("no description given: pass it as arguments or on stdin")
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return model.DesignRequest{}, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}
	return model.NewDesignRequest(text, a.flags.Locale, a.flags.Hint, model.DesignContext{}), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// stdinIsTerminal reports whether stdin is interactive
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
