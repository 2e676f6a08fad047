package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sales-dashboard/cmd/feedwriter"
	"sales-dashboard/cmd/statussubscriber"
	"sales-dashboard/cmd/webhookmonitor"
	"sales-dashboard/cmd/webhookservice"
	"sales-dashboard/internal/cli"
)

func main() {
	// check for help flag first
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse all command-line arguments
	mode, svcArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// ensure that mode is not empty
	if mode == "" {
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// create context cancelled on SIGINT/SIGTERM signals ensuring graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// run the service specified by the mode flag
	switch mode {
	case cli.ModeWebhook:
		fs := flag.NewFlagSet(cli.ModeWebhook, flag.ContinueOnError)
		port := fs.Int("port", 3000, "HTTP port for the webhook endpoint")
		maxConc := fs.Int("max-concurrent", 100, "Maximum number of webhook requests handled at once")
		configPath := fs.String("config", cli.DefaultConfigPath, "Path to the YAML config file")
		parseFlags(fs, svcArgs, cli.ModeWebhook)

		checkPort(fs, *port)
		if *maxConc <= 0 {
			fail(fs, "--max-concurrent must be > 0")
		}

		exitOnError(webhookservice.Run(ctx, *configPath, *port, *maxConc))

	case cli.ModeMonitor:
		fs := flag.NewFlagSet(cli.ModeMonitor, flag.ContinueOnError)
		port := fs.Int("port", 3001, "HTTP port for the status API")
		interval := fs.Duration("interval", 0, "Check interval, e.g. 30s (overrides monitor.interval)")
		maxRetries := fs.Int("max-retries", -1, "Backoff retries before fallback (overrides monitor.max_retries)")
		configPath := fs.String("config", cli.DefaultConfigPath, "Path to the YAML config file")
		parseFlags(fs, svcArgs, cli.ModeMonitor)

		checkPort(fs, *port)
		if *interval < 0 {
			fail(fs, "--interval must be positive")
		}

		exitOnError(webhookmonitor.Run(ctx, *configPath, *port, webhookmonitor.Overrides{
			Interval:   *interval,
			MaxRetries: *maxRetries,
		}))

	case cli.ModeFeedWriter:
		fs := flag.NewFlagSet(cli.ModeFeedWriter, flag.ContinueOnError)
		prefetch := fs.Int("prefetch", 10, "RabbitMQ prefetch count")
		configPath := fs.String("config", cli.DefaultConfigPath, "Path to the YAML config file")
		parseFlags(fs, svcArgs, cli.ModeFeedWriter)

		if *prefetch <= 0 {
			fail(fs, "--prefetch must be > 0")
		}

		exitOnError(feedwriter.Run(ctx, *configPath, *prefetch))

	case cli.ModeStatus:
		fs := flag.NewFlagSet(cli.ModeStatus, flag.ContinueOnError)
		configPath := fs.String("config", cli.DefaultConfigPath, "Path to the YAML config file")
		parseFlags(fs, svcArgs, cli.ModeStatus)

		exitOnError(statussubscriber.Run(ctx, *configPath))
	}
}

func parseFlags(fs *flag.FlagSet, args []string, mode string) {
	cli.AttachUsage(fs, mode)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func checkPort(fs *flag.FlagSet, port int) {
	if port <= 0 || port > 65535 {
		fail(fs, "--port must be between 1 and 65535")
	}
}

// fail reports an invalid flag value and exits with the usage status.
func fail(fs *flag.FlagSet, msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	fs.Usage()
	os.Exit(2)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
