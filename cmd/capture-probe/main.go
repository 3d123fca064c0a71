package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/remote"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/retry"
)

// Version information
const version = "v0.1.0"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	sim := flag.Bool("sim", false, "Use the simulated device")
	launch := flag.String("gst", "", "GStreamer launch description ending in an appsink")
	nonBlocking := flag.Bool("nonblock", false, "Poll with non-blocking reads")
	dumpPath := flag.String("dump", "", "Write packets to this file")
	compress := flag.Bool("compress", false, "zstd-compress the packet dump")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9108)")
	broker := flag.String("mqtt", "", "MQTT broker for remote play/pause (host:port)")
	logFile := flag.String("log-file", "", "Write logs to a rotating file")
	logFormat := flag.String("log-format", "", "Log format: text, json")
	probe := flag.Duration("probe", 0, "Measure arrival rate for this long before reading (0 = skip)")
	maxReopen := flag.Int("max-reopen", -1, "Reopen the device this many times after end-of-stream")
	maxPackets := flag.Int("max-packets", 0, "Stop after this many packets (0 = unlimited)")
	statsInterval := flag.Duration("stats-interval", 10*time.Second, "Interval between stats reports")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("capture-probe %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Flags override the file
	switch {
	case *launch != "":
		cfg.Source.Kind = "gst"
		cfg.Source.Launch = *launch
	case *sim:
		cfg.Source.Kind = "sim"
	}
	if *nonBlocking {
		cfg.Capture.NonBlocking = true
	}
	if *dumpPath != "" {
		cfg.Output.Path = *dumpPath
		cfg.Output.Compress = *compress
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *metricsAddr
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *probe > 0 {
		cfg.Capture.ProbeDurationS = int(probe.Seconds())
	}
	if *maxReopen >= 0 {
		cfg.Capture.MaxReopen = *maxReopen
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	closeLog := setupLogging(cfg.Log)
	defer closeLog()

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *maxPackets, *statsInterval); err != nil {
		slog.Error("capture-probe: exiting with error", "error", err)
		closeLog()
		os.Exit(1)
	}

	slog.Info("capture-probe: completed successfully")
}

func run(ctx context.Context, cfg *config.Config, maxPackets int, statsInterval time.Duration) error {
	live := &livePipeline{}
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metricsServer(cfg, live)
		g.Go(func() error {
			slog.Info("capture-probe: serving metrics", "listen", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var handler *remote.Handler
	if cfg.MQTT.Broker != "" {
		client, err := remote.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		handler = remote.NewHandler(client, remote.Topics{
			Control: cfg.MQTT.Topics.Control,
			Status:  cfg.MQTT.Topics.Status,
		}, cfg.MQTT.QoS, live)
		if err := handler.Start(ctx); err != nil {
			return err
		}
		defer handler.Stop()
	}

	var dump *packetDump
	if cfg.Output.Path != "" {
		d, err := newPacketDump(cfg.Output.Path, cfg.Output.Compress)
		if err != nil {
			return err
		}
		dump = d
		defer func() {
			if err := dump.Close(); err != nil {
				slog.Error("capture-probe: failed to close packet dump", "error", err)
			}
		}()
	}

	g.Go(func() error {
		reportStats(ctx, statsInterval, live, dump)
		return nil
	})

	// Any return from capture is an error (context.Canceled on a normal
	// finish), which cancels the other goroutines
	g.Go(func() error {
		return capture(ctx, cfg, live, handler, dump, maxPackets)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// capture opens the device, reads until end-of-stream and reopens up to
// MaxReopen times.
func capture(
	ctx context.Context,
	cfg *config.Config,
	live *livePipeline,
	handler *remote.Handler,
	dump *packetDump,
	maxPackets int,
) error {
	var state retry.State
	backoff := retry.DefaultConfig()
	total := 0

	for reopen := 0; ; reopen++ {
		var p *devicecapture.Pipeline
		err := retry.Run(ctx, func(ctx context.Context) error {
			opened, err := openPipeline(cfg)
			if err != nil {
				return err
			}
			p = opened
			return nil
		}, backoff, &state)
		if err != nil {
			return err
		}
		live.Store(p)

		if cfg.Capture.ProbeDurationS > 0 {
			stats, err := devicecapture.Probe(ctx, p, time.Duration(cfg.Capture.ProbeDurationS)*time.Second)
			if err == nil || errors.Is(err, devicecapture.ErrEndOfStream) {
				printProbe(stats)
			}
		}

		n, err := consume(ctx, p, cfg.Capture.NonBlocking, dump, maxPackets-total)
		total += n

		stats := p.Stats()
		if cerr := p.Close(); cerr != nil {
			slog.Error("capture-probe: error closing pipeline", "error", cerr)
		}
		printFinalStats(stats, dump)

		switch {
		case errors.Is(err, errPacketLimit):
			fmt.Printf("\nReached maximum packets (%d), stopping...\n", maxPackets)
			return context.Canceled
		case errors.Is(err, devicecapture.ErrEndOfStream):
			if handler != nil {
				handler.PublishStatus("end_of_stream")
			}
			if reopen >= cfg.Capture.MaxReopen {
				slog.Info("capture-probe: device ended",
					"terminal_status", stats.TerminalStatus.String(),
					"reopens", reopen,
				)
				return context.Canceled
			}
			slog.Warn("capture-probe: device ended, reopening",
				"terminal_status", stats.TerminalStatus.String(),
				"reopen", reopen+1,
				"max_reopen", cfg.Capture.MaxReopen,
			)
		default:
			return err
		}
	}
}

var errPacketLimit = errors.New("packet limit reached")

// consume reads packets until the pipeline ends, ctx ends or limit packets
// were read (limit <= 0 = unlimited).
func consume(ctx context.Context, p *devicecapture.Pipeline, nonBlocking bool, dump *packetDump, limit int) (int, error) {
	count := 0
	for {
		var pkt *devicecapture.Packet
		var err error
		if nonBlocking {
			pkt, err = p.Read(false)
			if errors.Is(err, devicecapture.ErrWouldBlock) {
				select {
				case <-ctx.Done():
					return count, ctx.Err()
				case <-time.After(5 * time.Millisecond):
				}
				continue
			}
		} else {
			pkt, err = p.ReadContext(ctx)
		}
		if err != nil {
			return count, err
		}

		count++
		slog.Debug("capture-probe: packet",
			"stream", pkt.Stream,
			"seq", pkt.Seq,
			"pts", pkt.PTS,
			"size_bytes", pkt.Size(),
			"trace_id", pkt.TraceID,
		)

		if dump != nil {
			if err := dump.Save(pkt); err != nil {
				slog.Error("capture-probe: failed to dump packet", "error", err, "seq", pkt.Seq)
			}
		}
		pkt.Release()

		if limit > 0 && count >= limit {
			return count, errPacketLimit
		}
	}
}

func metricsServer(cfg *config.Config, live *livePipeline) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(live, cfg.Capture.Name),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupLogging installs the default slog logger and returns a func that
// flushes the log file, if any.
func setupLogging(l config.LogConfig) func() {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if l.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
			Compress:   l.Compress,
		}
		out = rotating
		closeFn = func() { _ = rotating.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if l.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
	return closeFn
}
