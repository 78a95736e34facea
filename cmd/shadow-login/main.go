package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	shadowclient "github.com/vatsimnerd/shadow-client"
	"github.com/vatsimnerd/shadow-client/config"
	"github.com/vatsimnerd/shadow-client/credentials"
	"github.com/vatsimnerd/shadow-client/providers/shadow"
)

const retryDelay = 2 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		logrus.WithError(err).Error("shadow-login failed")
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup, including the
// metrics dump, happens on every path.
func run(args []string, stdin io.Reader) error {
	var (
		debug        bool
		configPath   string
		dataDir      string
		start        bool
		wait         bool
		pollInterval time.Duration
		metricsFile  string
	)

	flags := pflag.NewFlagSet("shadow-login", pflag.ContinueOnError)
	flags.BoolVarP(&debug, "debug", "d", false, "debug mode")
	flags.StringVarP(&configPath, "config", "c", "", "optional YAML config file")
	flags.StringVar(&dataDir, "data-dir", "", "directory holding creds.json (overrides config)")
	flags.BoolVar(&start, "start", false, "start the vm if it is down")
	flags.BoolVar(&wait, "wait", false, "poll until the vm is up and print its address")
	flags.DurationVar(&pollInterval, "poll-interval", 4*time.Second, "vm state poll interval with --wait")
	flags.StringVar(&metricsFile, "metrics-textfile", "", "write request metrics to this file on exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logrus.SetLevel(cfg.Level())
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := credentials.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	registry := prometheus.NewRegistry()
	provider := shadow.New(
		&http.Client{Timeout: cfg.Timeout},
		shadow.WithSSOURL(cfg.SSOURL),
		shadow.WithDiscoveryURL(cfg.DiscoveryURL),
		shadow.WithUserAgent(cfg.UserAgent),
		shadow.WithMetrics(shadow.NewMetrics(registry, "shadow_client")),
	)
	if metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
				logrus.WithError(err).Error("error writing metrics")
			}
		}()
	}

	client := shadowclient.New(provider, store)
	in := bufio.NewReader(stdin)

	if err := authorize(ctx, client, in); err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	fmt.Println("Authorized.")

	if err := runVM(ctx, client, start, wait, pollInterval); err != nil {
		return fmt.Errorf("vm control: %w", err)
	}
	return nil
}

func authorize(ctx context.Context, client *shadowclient.Client, in *bufio.Reader) error {
	for {
		if err := client.Advance(ctx); err != nil {
			return err
		}

		switch client.Phase() {
		case shadowclient.PhaseAwaitingPrimaryCredentials:
			email, err := prompt(in, "Email: ")
			if err != nil {
				return err
			}
			password, err := readPassword(in)
			if err != nil {
				return err
			}
			if err := client.SubmitPrimaryCredentials(ctx, email, password); err != nil {
				logrus.WithError(err).Error("login failed, try again")
			}
		case shadowclient.PhaseAwaitingConfirmationCode:
			code, err := prompt(in, "Confirmation code from your email: ")
			if err != nil {
				return err
			}
			if err := client.SubmitConfirmationCode(ctx, code); err != nil {
				return err
			}
		case shadowclient.PhaseReady:
			return nil
		default:
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func runVM(ctx context.Context, client *shadowclient.Client, start, wait bool, interval time.Duration) error {
	state, err := client.VMState(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("VM is %s\n", state)

	if start && state.Status == shadowclient.VMDown {
		if err := client.StartVM(ctx); err != nil {
			return err
		}
	}
	if !wait {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for state.Status != shadowclient.VMUp {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		state, err = client.VMState(ctx)
		if err != nil {
			return err
		}
		logrus.WithField("state", state.Status).Debug("polled vm state")
	}
	fmt.Printf("VM ready at %s:%d\n", state.Address, state.Port)
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword disables echo when stdin is a terminal and falls back to
// a plain line read for piped input.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, "Password: ")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
