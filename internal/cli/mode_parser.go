package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeWebhook    = "webhook-service"
	ModeMonitor    = "webhook-monitor"
	ModeFeedWriter = "feed-writer"
	ModeStatus     = "status-subscriber"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "config/config.yaml"

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeWebhook, "webhook":
		return ModeWebhook, true
	case ModeMonitor, "monitor":
		return ModeMonitor, true
	case ModeFeedWriter, "feed":
		return ModeFeedWriter, true
	case ModeStatus, "status":
		return ModeStatus, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `webhook-service --port=3001`
//
// An unknown --mode value is an error.
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}
	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // switch the color to cyan

	fmt.Fprintln(w, `Usage:
  ./sales-dashboard --mode=<service> [flags]

Services (modes):
  webhook-service      HTTP endpoint receiving order webhooks from delivery providers
  webhook-monitor      Periodic health checks of the webhook endpoint with a status API
  feed-writer          RabbitMQ consumer that stores forwarded orders in the live feed
  status-subscriber    RabbitMQ subscriber that prints webhook status changes

Examples:
  ./sales-dashboard --mode=webhook-service --port=3000 --max-concurrent=100
  ./sales-dashboard --mode=webhook-monitor --port=3001 --interval=30s --max-retries=3
  ./sales-dashboard --mode=feed-writer --prefetch=10
  ./sales-dashboard --mode=status-subscriber --config=config/config.yaml`)

	fmt.Fprint(w, "\033[0m") // switch back to normal
}

func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./sales-dashboard --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
