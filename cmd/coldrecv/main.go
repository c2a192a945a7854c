// coldrecv is the receive-mode entry point: it reads raw lines from the
// link, recovers the session nonce, and prints each authenticated account
// group as a JSON line on stdout (optionally also persisting it to a Bolt
// ledger). Corrupted or foreign lines are dropped silently; the process
// runs until end-of-stream or a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/coldstream-io/coldstream/internal/config"
	"github.com/coldstream-io/coldstream/internal/link"
	"github.com/coldstream-io/coldstream/internal/observability"
	"github.com/coldstream-io/coldstream/internal/record"
	"github.com/coldstream-io/coldstream/internal/store"
	"github.com/coldstream-io/coldstream/internal/transfer"
)

const version = "1.0.0"

var (
	configPath     string
	device         string
	baud           int
	input          string
	promptPassword bool
	storePath      string
	metricsAddr    string
	backoff        time.Duration
)

func main() {
	flag.StringVar(&configPath, "config", "", "TOML config file")
	flag.StringVar(&device, "device", "", "Serial device (empty: read from -in stream)")
	flag.IntVar(&baud, "baud", 115200, "Serial baud rate (pre-agreed)")
	flag.StringVar(&input, "in", "-", "Input stream path when no -device ('-' for stdin)")
	flag.BoolVar(&promptPassword, "password-prompt", false, "Prompt for the session password")
	flag.StringVar(&storePath, "store", "", "Bolt ledger path for received groups")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.DurationVar(&backoff, "backoff", transfer.DefaultBackoff, "Reconnect backoff")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger("coldrecv", version, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if shutdown, err := observability.InitTracing(ctx, "coldstream-recv", version); err == nil {
		defer shutdown(context.Background())
	}

	metrics := observability.NewMetrics()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, log)
	}

	password, err := resolvePassword()
	if err != nil {
		log.Fatal(err, "failed to read password")
	}

	session, err := transfer.NewRecvSession(password)
	if err != nil {
		log.Fatal(err, "invalid session configuration")
	}

	var ledger *store.Store
	if cfg.StorePath != "" {
		ledger, err = store.Open(cfg.StorePath)
		if err != nil {
			log.Fatal(err, "failed to open ledger")
		}
		defer ledger.Close()
	}

	opener, err := buildOpener(cfg)
	if err != nil {
		log.Fatal(err, "failed to build link opener")
	}

	if err := receive(ctx, cfg, session, opener, ledger, log.WithDevice(cfg.Device), metrics); err != nil {
		log.Error(err, "receive aborted")
		os.Exit(1)
	}
}

// receive runs the receiver loop, reopening the link with backoff after a
// read fault. The session (and with it the recovered nonce and the
// duplicate highwater) survives every reconnect.
func receive(ctx context.Context, cfg config.Config, session *transfer.Session, opener link.Opener, ledger *store.Store, log *observability.Logger, metrics *observability.Metrics) error {
	lnk, err := openWithRetry(ctx, opener, cfg.Backoff, log)
	if err != nil {
		return err
	}
	defer func() { lnk.Close() }()

	receiver := transfer.NewReceiver(session, lnk, log, metrics)
	for {
		err := receiver.Run(ctx, func(rec transfer.Received) error {
			return deliver(rec, ledger)
		})
		switch {
		case err == nil:
			return nil // end-of-stream
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			log.Error(err, "link read fault, reconnecting")
			lnk.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Backoff):
			}
			lnk, err = openWithRetry(ctx, opener, cfg.Backoff, log)
			if err != nil {
				return err
			}
			receiver.Attach(lnk)
		}
	}
}

// deliver prints one received group as a JSON line and persists it when a
// ledger is configured.
func deliver(rec transfer.Received, ledger *store.Store) error {
	payload, err := record.MarshalGroup(rec.Group)
	if err != nil {
		return err
	}
	fmt.Printf("%5d:%s\n", rec.Index, payload)
	if ledger != nil {
		return ledger.Put(rec.Index, rec.Group)
	}
	return nil
}

func openWithRetry(ctx context.Context, opener link.Opener, backoff time.Duration, log *observability.Logger) (link.Link, error) {
	for {
		lnk, err := opener.Open()
		if err == nil {
			return lnk, nil
		}
		log.Error(err, "transport open failed, will retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = device
		case "baud":
			cfg.Baud = baud
		case "store":
			cfg.StorePath = storePath
		case "metrics-addr":
			cfg.MetricsAddr = metricsAddr
		case "backoff":
			cfg.Backoff = backoff
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func resolvePassword() (string, error) {
	if promptPassword {
		fmt.Fprint(os.Stderr, "Session password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return os.Getenv("COLDSTREAM_PASSWORD"), nil
}

func buildOpener(cfg config.Config) (link.Opener, error) {
	if cfg.Device != "" {
		return link.SerialOpener{Device: cfg.Device, Baud: cfg.Baud}, nil
	}
	switch input {
	case "", "-":
		return link.OpenerFunc(func() (link.Link, error) {
			return link.FromPair(os.Stdin, nil), nil
		}), nil
	default:
		return link.OpenerFunc(func() (link.Link, error) {
			f, err := os.Open(input)
			if err != nil {
				return nil, err
			}
			return link.FromPair(f, nil), nil
		}), nil
	}
}

func serveMetrics(addr string, metrics *observability.Metrics, log *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "metrics endpoint failed")
	}
}
