package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-save/internal/adrive"
	"github.com/tonimelisma/alipan-save/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// httpClientTimeout bounds a whole HTTP exchange. Per-attempt timeouts
// are applied by the adrive client on top of it.
const httpClientTimeout = 5 * time.Minute

// defaultHTTPClient returns the one HTTP client shared by a run.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// CLIFlags holds the persistent flags shared by every subcommand.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is the per-invocation state built by the root command's
// PersistentPreRunE and read by subcommands through mustCLIContext.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	// out receives command output (tables, JSON); status goes to stderr.
	out io.Writer

	// fileLogger writes only to the persistent log file; nil without one.
	fileLogger *slog.Logger
	closeLog   func() error
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by PersistentPreRunE.
// Panics if called from a command that skipped it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext not initialized")
	}

	return cc
}

// Finish records a command's error in the log file and closes it. It
// returns err unchanged so RunE can end with "return cc.Finish(err)".
func (cc *CLIContext) Finish(err error) error {
	if err != nil && cc.fileLogger != nil {
		cc.fileLogger.Error("command failed", slog.String("error", err.Error()))
	}

	if cc.closeLog != nil {
		if cerr := cc.closeLog(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: closing log file: %v\n", cerr)
		}

		cc.closeLog = nil
	}

	return err
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:   "alipan-save",
		Short: "Copy an Aliyun Drive share into your own drive",
		Long: "alipan-save copies a publicly shared folder tree on Aliyun Drive (alipan) into a " +
			"folder of your account. Everything happens server-side; nothing is downloaded.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadCLIContext(cmd, args, *flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path (TOML, or JSON by .json extension)")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSaveCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// shareLinkArgAnnotation marks commands whose first positional argument
// overrides share_link.
const shareLinkArgAnnotation = "share-link-arg"

// loadCLIContext resolves the effective configuration, builds the loggers,
// and stores a CLIContext on the command's context.
func loadCLIContext(cmd *cobra.Command, args []string, flags CLIFlags) error {
	cli, err := cliOverrides(cmd, args, flags)
	if err != nil {
		return err
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		err = fmt.Errorf("loading config: %w", err)

		// The configured log file is unknown here, so use the default one.
		cfgPath, _ := config.ConfigPath(env, cli)
		logStartupError(config.DefaultLogPath(cfgPath), err)

		return err
	}

	logs, err := buildLoggers(resolved, flags, os.Stderr)
	if err != nil {
		return err
	}

	cc := &CLIContext{
		Flags:      flags,
		Cfg:        resolved,
		Logger:     logs.console,
		out:        cmd.OutOrStdout(),
		fileLogger: logs.file,
		closeLog:   logs.close,
	}

	cc.Logger.Debug("config resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("log_file", resolved.LogFile),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// cliOverrides collects override values from the flags a subcommand
// defines. Flags the user did not set leave the pointer fields nil.
func cliOverrides(cmd *cobra.Command, args []string, flags CLIFlags) (config.CLIOverrides, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Annotations[shareLinkArgAnnotation] == "true" && len(args) > 0 {
		cli.ShareLink = args[0]
	}

	fs := cmd.Flags()

	if fs.Changed("password") {
		v, err := fs.GetString("password")
		if err != nil {
			return cli, err
		}

		cli.SharePwd = &v
	}

	if fs.Changed("target-name") {
		v, err := fs.GetString("target-name")
		if err != nil {
			return cli, err
		}

		cli.TargetName = &v
	}

	if fs.Changed("target-parent") {
		v, err := fs.GetString("target-parent")
		if err != nil {
			return cli, err
		}

		cli.TargetParent = &v
	}

	if fs.Changed("batch-size") {
		v, err := fs.GetInt("batch-size")
		if err != nil {
			return cli, err
		}

		cli.BatchSize = &v
	}

	return cli, nil
}

// newClient builds the adrive client for the resolved config. apiBase
// is passed in because it may be inferred from the share link.
func newClient(cc *CLIContext, apiBase string) *adrive.Client {
	return adrive.NewClient(adrive.Config{
		BaseURL:    apiBase,
		DriveID:    cc.Cfg.DriveID,
		HTTPClient: defaultHTTPClient(),
		Token:      adrive.StaticToken(cc.Cfg.AccessToken, cc.Logger),
		Logger:     cc.Logger,
		Timeout:    cc.Cfg.RequestTimeout,
	})
}

// exitOnError prints a user-friendly error message to stderr and exits.
// Authorization and locked-drive errors already carry remediation steps.
func exitOnError(err error) {
	switch {
	case errors.Is(err, config.ErrMissingFields):
		fmt.Fprintf(os.Stderr, "Error: %v\nSet them in the config file (%s) or via flags.\n", err, config.DefaultConfigPath())
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(1)
}
