// coldsend is the send-mode entry point: it drains account groups produced
// by the offline generator (JSON lines on stdin or a file) and streams them
// across the link until the sequence is exhausted. Link trouble is retried
// forever; only codec or cipher faults exit non-zero.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/coldstream-io/coldstream/internal/config"
	"github.com/coldstream-io/coldstream/internal/link"
	"github.com/coldstream-io/coldstream/internal/observability"
	"github.com/coldstream-io/coldstream/internal/record"
	"github.com/coldstream-io/coldstream/internal/transfer"
)

const version = "1.0.0"

var (
	configPath     string
	device         string
	baud           int
	input          string
	output         string
	promptPassword bool
	noEnumerate    bool
	corruptRate    float64
	paceBPS        float64
	metricsAddr    string
	backoff        time.Duration
)

func main() {
	flag.StringVar(&configPath, "config", "", "TOML config file")
	flag.StringVar(&device, "device", "", "Serial device (empty: write to -out stream)")
	flag.IntVar(&baud, "baud", 115200, "Serial baud rate (pre-agreed)")
	flag.StringVar(&input, "in", "-", "Account-group JSON lines file ('-' for stdin)")
	flag.StringVar(&output, "out", "", "Output stream path when no -device ('-' for stdout)")
	flag.BoolVar(&promptPassword, "password-prompt", false, "Prompt for the session password")
	flag.BoolVar(&noEnumerate, "no-enumerate", false, "Omit record indexes (plaintext mode only)")
	flag.Float64Var(&corruptRate, "corrupt", 0, "Noise-injection rate for link drills (0..1)")
	flag.Float64Var(&paceBPS, "pace", 0, "Cap sustained write rate in bytes/sec (0: unpaced)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.DurationVar(&backoff, "backoff", transfer.DefaultBackoff, "Reconnect backoff")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger("coldsend", version, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if shutdown, err := observability.InitTracing(ctx, "coldstream-send", version); err == nil {
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

	session, err := transfer.NewSendSession(password, cfg.Enumerate, cfg.CorruptRate)
	if err != nil {
		log.Fatal(err, "invalid session configuration")
	}

	producer, err := openProducer(input)
	if err != nil {
		log.Fatal(err, "failed to open account-group input")
	}
	defer producer.close()

	opener, err := buildOpener(cfg)
	if err != nil {
		log.Fatal(err, "failed to build link opener")
	}
	opener = link.PacedOpener(opener, cfg.PaceBytesPerSec)
	opener = link.NoisyOpener(opener, session.CorruptRate)

	sender, err := transfer.NewSender(session, opener, producer, log.WithDevice(cfg.Device), metrics,
		transfer.WithBackoff(cfg.Backoff))
	if err != nil {
		log.Fatal(err, "invalid sender configuration")
	}

	if err := sender.Run(ctx); err != nil {
		log.Error(err, "transfer aborted")
		os.Exit(1)
	}
}

// loadConfig overlays the optional TOML file onto defaults, then lets
// explicitly-set flags win.
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
		case "no-enumerate":
			cfg.Enumerate = !noEnumerate
		case "corrupt":
			cfg.CorruptRate = corruptRate
		case "pace":
			cfg.PaceBytesPerSec = paceBPS
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

// resolvePassword reads the session password from the terminal or the
// environment. Empty means plaintext mode.
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

// buildOpener picks the transport: a real serial device with modem
// signalling, or a plain write stream for files and pipes.
func buildOpener(cfg config.Config) (link.Opener, error) {
	if cfg.Device != "" {
		return link.SerialOpener{Device: cfg.Device, Baud: cfg.Baud}, nil
	}
	switch output {
	case "", "-":
		return link.OpenerFunc(func() (link.Link, error) {
			return link.FromPair(nil, os.Stdout), nil
		}), nil
	default:
		return link.OpenerFunc(func() (link.Link, error) {
			f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
			if err != nil {
				return nil, err
			}
			return link.FromPair(nil, f), nil
		}), nil
	}
}

// lineProducer parses the generator's output: one JSON triple array per
// line, blank lines skipped.
type lineProducer struct {
	sc *bufio.Scanner
	f  *os.File
}

func openProducer(path string) (*lineProducer, error) {
	if path == "" || path == "-" {
		return &lineProducer{sc: bufio.NewScanner(os.Stdin)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &lineProducer{sc: bufio.NewScanner(f), f: f}, nil
}

func (p *lineProducer) Next() (record.AccountGroup, error) {
	for p.sc.Scan() {
		line := strings.TrimSpace(p.sc.Text())
		if line == "" {
			continue
		}
		return record.UnmarshalGroup([]byte(line))
	}
	if err := p.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (p *lineProducer) close() {
	if p.f != nil {
		p.f.Close()
	}
}

func serveMetrics(addr string, metrics *observability.Metrics, log *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "metrics endpoint failed")
	}
}
