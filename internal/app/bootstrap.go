package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"arb_go/internal/cache"
	"arb_go/internal/domain"
	"arb_go/internal/engine"
	"arb_go/internal/event"
	"arb_go/internal/infra"
	"arb_go/internal/infra/bitget"
	"arb_go/internal/infra/storage"
	"arb_go/internal/infra/upbit"
	"arb_go/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// feed pairs a venue worker with the ingestor draining it.
type feed struct {
	name     string
	worker   domain.FeedWorker
	ingestor *engine.Ingestor
}

// Bootstrap owns every long-lived component. Nothing is global: each part is
// constructed here and handed to its consumers.
type Bootstrap struct {
	Config   *infra.Config
	Manager  *engine.Manager
	Service  *service.DepthService
	Metrics  *infra.Metrics
	Journal  *storage.Storage // nil when disabled
	Monitor  *engine.Monitor
	Events   *engine.EventProcessor
	FX       *infra.ExchangeRateClient // nil when disabled
	Registry *prometheus.Registry

	feeds []feed
}

// NewBootstrap wires components from cfg. No connection is opened.
func NewBootstrap(cfg *infra.Config) (*Bootstrap, error) {
	b := &Bootstrap{Config: cfg, Metrics: infra.NewMetrics()}

	overrides := make(map[engine.BookKey]int, len(cfg.Book.Overrides))
	for _, o := range cfg.Book.Overrides {
		symbol, err := domain.ParseSymbol(o.Symbol)
		if err != nil {
			return nil, &domain.ConfigError{Field: "book.overrides", Err: err}
		}
		overrides[engine.BookKey{Venue: domain.VenueID(o.Venue), Symbol: symbol}] = o.MaxDepth
	}

	snapshotCache := cache.New(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLSec)*time.Second)
	opts := []engine.ManagerOption{engine.WithLogger(slog.Default())}
	if cfg.Cache.HistoryPerKey > 0 {
		opts = append(opts, engine.WithHistory(cache.NewHistory(cfg.Cache.HistoryPerKey)))
	}
	b.Manager = engine.NewManager(engine.ManagerConfig{
		MaxDepth:         cfg.Book.MaxDepth,
		DepthOverrides:   overrides,
		StaleAfter:       time.Duration(cfg.Health.StaleAfterSec) * time.Second,
		SnapshotOnUpdate: cfg.Book.SnapshotOnUpdate,
	}, snapshotCache, opts...)
	b.Service = service.NewDepthService(b.Manager)

	if cfg.Journal.Enabled {
		journal, err := storage.NewStorage(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open anomaly journal: %w", err)
		}
		b.Journal = journal
		slog.Info("✅ Anomaly journal initialized", slog.String("path", cfg.Journal.Path))
	}

	var journal domain.AnomalyJournal
	if b.Journal != nil {
		journal = b.Journal
	}
	b.Monitor = engine.NewMonitor(b.Manager, time.Duration(cfg.Health.IntervalSec)*time.Second, journal, b.Metrics)

	b.Events = engine.NewEventProcessor(engine.LogBookEvents(slog.Default()), b.Metrics)
	b.buildFeeds()

	if cfg.ExchangeRate.Enabled {
		b.FX = infra.NewExchangeRateClient(cfg.ExchangeRate, b.Service.UpdateExchangeRate)
	}

	ingestors := make([]*engine.Ingestor, 0, len(b.feeds))
	for _, f := range b.feeds {
		ingestors = append(ingestors, f.ingestor)
	}
	b.Registry = infra.NewRegistry(infra.NewCollector(b.Manager, b.Metrics, ingestors...))
	return b, nil
}

func (b *Bootstrap) buildFeeds() {
	cfg := b.Config
	if cfg.Feeds.Upbit.Enabled {
		in := b.newIngestor(string(domain.VenueUpbit))
		w := upbit.NewWorker(cfg.Feeds.Upbit.WSURL, cfg.Feeds.Upbit.Symbols, in.Inbox(), b.Metrics)
		b.feeds = append(b.feeds, feed{name: "upbit", worker: w, ingestor: in})
	}
	if cfg.Feeds.Bitget.Enabled {
		in := b.newIngestor(string(domain.VenueBitget))
		w := bitget.NewWorker(cfg.Feeds.Bitget.WSURL, cfg.Feeds.Bitget.InstType, cfg.Feeds.Bitget.Channel,
			cfg.Feeds.Bitget.Symbols, in.Inbox(), b.Metrics)
		b.feeds = append(b.feeds, feed{name: "bitget", worker: w, ingestor: in})
	}
}

func (b *Bootstrap) newIngestor(name string) *engine.Ingestor {
	in := engine.NewIngestor(name, b.Config.Ingest.InboxSize, b.Manager, b.Metrics)
	in.SetEventProcessor(b.Events)
	if b.Config.Ingest.DumpDir != "" {
		in.SetDumpPath(filepath.Join(b.Config.Ingest.DumpDir, fmt.Sprintf("panic_dump_%s.json", name)))
	}
	return in
}

// Run starts every component and blocks until ctx is done or one of them fails.
func (b *Bootstrap) Run(ctx context.Context) error {
	event.Warmup()
	b.markStart(ctx)

	g, ctx := errgroup.WithContext(ctx)

	for _, f := range b.feeds {
		in := f.ingestor
		g.Go(func() error {
			in.Run(ctx)
			return nil
		})
	}

	g.Go(func() error { return b.Monitor.Run(ctx) })

	if b.FX != nil {
		g.Go(func() error { return b.FX.Run(ctx) })
	}

	if b.Config.Metrics.Enabled {
		srv := &http.Server{
			Addr:              b.Config.Metrics.Addr,
			Handler:           b.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("📈 HTTP server started", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for _, f := range b.feeds {
		if err := f.worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect feed", slog.String("feed", f.name), slog.Any("error", err))
			continue
		}
		slog.Info("✅ Feed started", slog.String("feed", f.name))
	}

	g.Go(func() error {
		<-ctx.Done()
		for _, f := range b.feeds {
			f.worker.Disconnect()
		}
		return nil
	})

	slog.Info("✨ Order book engine fully operational", slog.Int("feeds", len(b.feeds)))
	return g.Wait()
}

func (b *Bootstrap) markStart(ctx context.Context) {
	if b.Journal == nil {
		return
	}
	if err := b.Journal.SetMeta(ctx, storage.MetaLastStart, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to record start", slog.Any("error", err))
	}
	if err := b.Journal.SetMeta(ctx, storage.MetaVersion, b.Config.App.Version); err != nil {
		slog.Warn("Failed to record version", slog.Any("error", err))
	}
}

// Close releases resources held after Run returns.
func (b *Bootstrap) Close() error {
	if b.Journal != nil {
		return b.Journal.Close()
	}
	return nil
}
