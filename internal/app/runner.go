// Package app wires configuration, providers and services into the
// copilotd command tree.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/cache"
	"github.com/defi-copilot/copilotd/internal/config"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/out"
	"github.com/defi-copilot/copilotd/internal/schema"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr, now: time.Now}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	verbose  bool
	cache    *cache.Store
	log      *zap.Logger
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zap.NewNop()}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if state.cache != nil {
		_ = state.cache.Close()
	}
	if state.log != nil {
		_ = state.log.Sync()
	}
	if err == nil {
		return 0
	}

	state.renderError(err)
	return cperr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "AI-assisted DeFi copilot daemon and CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			// Introspection commands need no configuration or cache.
			case "help", "version", "schema":
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return cperr.Wrap(cperr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			if err := s.initLogger(cmd.Name()); err != nil {
				return cperr.Wrap(cperr.CodeInternal, "init logger", err)
			}
			if settings.CacheEnabled && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return cperr.Wrap(cperr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cperr.Wrap(cperr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Upstream request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per upstream request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC endpoint override")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain-id", 0, "Target chain id override")
	cmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newGasCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print the command surface as JSON",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			described, err := schema.Describe(cmd.Root(), strings.Join(args, " "))
			if err != nil {
				return cperr.Wrap(cperr.CodeUsage, "describe command", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(described)
		},
	}
}

// initLogger keeps one-shot commands quiet unless --verbose; serve always
// logs structured output.
func (s *runtimeState) initLogger(commandName string) error {
	if commandName != "serve" && !s.verbose {
		s.log = zap.NewNop()
		return nil
	}
	zcfg := zap.NewProductionConfig()
	if s.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	s.log = logger
	return nil
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List tokens known on the target chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emit(token.Known(s.settings.TargetChainID))
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emit(data any, warnings ...string) error {
	return out.Render(s.runner.stdout, model.OK(data, warnings...), s.settings.OutputMode)
}

func (s *runtimeState) renderError(err error) {
	env := model.Fail(int(cperr.CodeOf(err)), err.Error())
	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	_ = out.Render(s.runner.stderr, env, mode)
}
