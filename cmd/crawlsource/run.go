package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arloliu/crawlsource"
	"github.com/arloliu/crawlsource/buffer"
	"github.com/arloliu/crawlsource/coordinator"
	"github.com/arloliu/crawlsource/crawler"
	"github.com/arloliu/crawlsource/internal/logging"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl a static set of work items until interrupted",
		Long: `Run starts a source over a static crawler with --items work items of
--pages pages each. Records are printed to stdout as JSON lines, or published
to a JetStream stream with --buffer jetstream (nats stores only).

Source settings come from the "source" section of --config, for example:

  source:
    workerCount: 4
    leaseDuration: 30s
    reopenDelay: 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if d := viper.GetDuration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			return runSource(ctx)
		},
	}

	flags := cmd.Flags()
	flags.Int("workers", 0, "worker loops (overrides source.workerCount)")
	flags.Int("items", 5, "static work items to discover")
	flags.Int("pages", 3, "pages per work item")
	flags.String("buffer", "memory", "downstream buffer: memory or jetstream")
	flags.Int("buffer-size", 1024, "capacity of the memory buffer")
	flags.String("stream", buffer.DefaultStream, "JetStream stream for the jetstream buffer")
	flags.String("owner-id", "", "lease owner identity (default <hostname>-<uuid>)")
	flags.Float64("rate", 0, "fetches per second across workers, 0 for unlimited")
	flags.Duration("duration", 0, "stop after this long, 0 to run until interrupted")
	flags.Bool("quiet", false, "do not print records")
	for _, name := range []string{"workers", "items", "pages", "buffer", "buffer-size", "stream", "owner-id", "rate", "duration", "quiet"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func sourceConfig() (crawlsource.Config, error) {
	cfg := crawlsource.DefaultConfig()
	if viper.IsSet("source") {
		if err := viper.UnmarshalKey("source", &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode source config: %w", err)
		}
	}
	if n := viper.GetInt("workers"); n > 0 {
		cfg.WorkerCount = n
	}
	if r := viper.GetFloat64("rate"); r > 0 {
		cfg.FetchRateLimit = r
	}

	return cfg, nil
}

func newLogger() *logging.SlogLogger {
	return logging.New(os.Stderr, "crawlsource", logging.ParseLevel(viper.GetString("log-level")), viper.GetBool("log-json"))
}

func runSource(ctx context.Context) error {
	logger := newLogger()

	cfg, err := sourceConfig()
	if err != nil {
		return err
	}

	items := make([]crawler.Item, viper.GetInt("items"))
	for i := range items {
		key := fmt.Sprintf("item-%03d", i)
		items[i] = crawler.Item{Key: key, Pages: crawler.Pages(key, viper.GetInt("pages"))}
	}
	static := crawler.NewStatic(items...)

	reg := prometheus.NewRegistry()
	metrics := crawlsource.NewPrometheusMetrics(reg, "")

	hooks := &crawlsource.Hooks{
		OnLeadershipChanged: func(ctx context.Context, isLeader bool) error {
			logger.Info("leadership changed", "is_leader", isLeader)
			return nil
		},
		OnPartitionFailed: func(ctx context.Context, p crawlsource.Partition, err error) error {
			logger.Warn("work item failed permanently", "partition_key", p.Key, "error", err)
			return nil
		},
	}

	src, err := crawlsource.New(&cfg, static,
		crawlsource.WithLogger(logger),
		crawlsource.WithMetrics(metrics),
		crawlsource.WithHooks(hooks),
	)
	if err != nil {
		return err
	}

	be, err := openStore(ctx, viper.GetString("store"), viper.GetString("bucket"))
	if err != nil {
		return err
	}
	defer be.Close()

	coordOpts := []coordinator.Option{
		coordinator.WithLeaseDuration(cfg.LeaseDuration),
		coordinator.WithLogger(logger.With("component", "coordinator")),
		coordinator.WithMetrics(metrics),
	}
	if id := viper.GetString("owner-id"); id != "" {
		coordOpts = append(coordOpts, coordinator.WithOwnerID(id))
	}
	coord, err := coordinator.New(be.store, src.PartitionFactory(), coordOpts...)
	if err != nil {
		return err
	}
	if err := src.SetCoordinator(ctx, coord); err != nil {
		return err
	}

	buf, drain, err := newBuffer(ctx, be)
	if err != nil {
		return err
	}

	if err := src.Start(ctx, buf); err != nil {
		return err
	}

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		drain(ctx)
	}()

	<-ctx.Done()

	stopErr := src.Stop(context.Background())
	<-drainDone

	printSummary(reg)

	if stopErr != nil && !errors.Is(stopErr, crawlsource.ErrNotStarted) {
		return stopErr
	}

	return nil
}

// recordLine is the stdout form of a record. Static crawler data is JSON.
type recordLine struct {
	Key        string            `json:"key"`
	Data       json.RawMessage   `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// newBuffer returns the configured buffer and a func that consumes it until ctx ends.
func newBuffer(ctx context.Context, be *backend) (crawlsource.Buffer, func(context.Context), error) {
	quiet := viper.GetBool("quiet")

	switch kind := viper.GetString("buffer"); kind {
	case "memory":
		buf, err := buffer.NewBounded(viper.GetInt("buffer-size"))
		if err != nil {
			return nil, nil, err
		}

		drain := func(ctx context.Context) {
			enc := json.NewEncoder(os.Stdout)
			for {
				rec, err := buf.Read(ctx)
				if err != nil {
					return
				}
				if !quiet {
					_ = enc.Encode(recordLine{Key: rec.Key, Data: rec.Data, Attributes: rec.Attributes})
				}
			}
		}

		return buf, drain, nil
	case "jetstream":
		if be.js == nil {
			return nil, nil, fmt.Errorf("jetstream buffer requires a nats store")
		}
		buf, err := buffer.NewJetStream(ctx, be.js, buffer.JetStreamConfig{
			Stream:          viper.GetString("stream"),
			DuplicateWindow: 2 * time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}

		// Records live in the stream; nothing to consume locally
		return buf, func(ctx context.Context) { <-ctx.Done() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown buffer %q", kind)
	}
}

// printSummary writes the counters gathered during the run to stderr.
func printSummary(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		return
	}

	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Fprintf(os.Stderr, "%s%s %v\n", f.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}
