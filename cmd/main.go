package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	patcher "github.com/povsister/xray-subscription-patcher"
)

type cliFlags struct {
	configPath string
	outputPath string
	restartCmd string
	userAgent  string
	timeout    time.Duration
	patchMode  bool
	dryRun     bool
	logLevel   string
}

var flags cliFlags

var mainCommand = &cobra.Command{
	Use:          "xray-subscription-patcher [flags] tag=url [tag=url ...]",
	Short:        "Generate xray vless outbounds from subscriptions and restart the router on change",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags.register(mainCommand.Flags())
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML options file")
	fs.StringVarP(&f.outputPath, "output", "o", patcher.DefaultOutputPath, "xray outbounds config path")
	fs.StringVar(&f.restartCmd, "restart-cmd", strings.Join(patcher.DefaultRestartCommand, " "), "command reloading the router daemon")
	fs.StringVar(&f.userAgent, "user-agent", patcher.DefaultUserAgent, "User-Agent of subscription requests")
	fs.DurationVar(&f.timeout, "timeout", patcher.DefaultFetchTimeout, "subscription request timeout")
	fs.BoolVar(&f.patchMode, "patch", false, "treat output as a full xray config and replace only the generated outbounds")
	fs.BoolVar(&f.dryRun, "dry-run", false, "print the resulting config instead of writing it")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mainCommand.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", flags.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts, subs, err := flags.resolve(cmd.Flags(), args)
	if err != nil {
		return err
	}
	p := patcher.NewPatcher(opts,
		patcher.NewHTTPFetcher(opts.Timeout, opts.UserAgent, logger),
		patcher.NewCommandRestarter(opts.RestartCommand, logger),
		logger)
	return p.Run(cmd.Context(), subs)
}

// resolve merges the options file with the flags and turns the file
// subscriptions plus args into the final subscription list.
func (f *cliFlags) resolve(fs *pflag.FlagSet, args []string) (patcher.Options, []patcher.Subscription, error) {
	var opts patcher.Options
	if len(f.configPath) > 0 {
		var err error
		if opts, err = patcher.LoadOptions(f.configPath); err != nil {
			return opts, nil, err
		}
	}
	f.apply(fs, &opts)
	opts = opts.WithDefaults()

	subs, err := patcher.ParseSubscriptionArgs(opts.Subscriptions, args)
	if err != nil {
		return opts, nil, err
	}
	if len(subs) <= 0 {
		return opts, nil, fmt.Errorf("%w: no subscriptions given", patcher.ErrMalformedArgument)
	}
	return opts, subs, nil
}

// apply overrides file options with explicitly set flags. Without a file
// every flag applies, defaults included.
func (f *cliFlags) apply(fs *pflag.FlagSet, opts *patcher.Options) {
	set := func(name string) bool {
		return len(f.configPath) <= 0 || fs.Changed(name)
	}
	if set("output") {
		opts.Output = f.outputPath
	}
	if set("restart-cmd") {
		opts.RestartCommand = strings.Fields(f.restartCmd)
	}
	if set("user-agent") {
		opts.UserAgent = f.userAgent
	}
	if set("timeout") {
		opts.Timeout = f.timeout
	}
	if set("patch") {
		opts.Patch = f.patchMode
	}
	opts.DryRun = f.dryRun
}
