package di

import (
	"context"
	"fmt"
	"time"

	"CoinSight/internal/domain/repository"
	"CoinSight/internal/handler/api"
	"CoinSight/internal/indicator"
	"CoinSight/internal/market"
	"CoinSight/internal/predict"
	"CoinSight/internal/provider/binance"
	"CoinSight/internal/provider/coingecko"
	"CoinSight/internal/provider/feargreed"
	"CoinSight/internal/quote"
	internalrepo "CoinSight/internal/repository"
	"CoinSight/pkg/cache"
	pkgch "CoinSight/pkg/clickhouse"
	"CoinSight/pkg/config"
	pkgkafka "CoinSight/pkg/kafka"
	applogger "CoinSight/pkg/logger"
	"CoinSight/pkg/metrics"
	"CoinSight/pkg/retry"
	"CoinSight/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and applies the
// schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideMarketStore creates the ClickHouse-backed market store.
func ProvideMarketStore(ch *pkgch.Client, l *applogger.Logger) repository.MarketStore {
	return internalrepo.NewCHMarketStore(ch, l)
}

// ProvideSnapshotCache creates the prediction snapshot cache: layered
// over Redis when enabled, in-memory otherwise.
func ProvideSnapshotCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBinance creates the primary-venue client.
func ProvideBinance(cfg *config.Config) *binance.Client {
	return binance.New(cfg.Binance.BaseURL, cfg.Binance.QuoteTimeout, cfg.Binance.KlineTimeout)
}

// ProvideCoinGecko creates the aggregator client.
func ProvideCoinGecko(cfg *config.Config) *coingecko.Client {
	return coingecko.New(
		cfg.CoinGecko.BaseURL,
		cfg.CoinGecko.APIKey,
		cfg.CoinGecko.PriceTimeout,
		cfg.CoinGecko.MarketTimeout,
		cfg.CoinGecko.RateCapacity,
		cfg.CoinGecko.RatePerSec,
	)
}

// ProvideFearGreed creates the sentiment index client.
func ProvideFearGreed(cfg *config.Config) *feargreed.Client {
	return feargreed.New(cfg.FearGreed.BaseURL, cfg.FearGreed.Timeout)
}

// ProvideQuoteService creates the quote cache and coalescer.
func ProvideQuoteService(bn *binance.Client, cg *coingecko.Client, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *quote.Service {
	return quote.NewService(bn, cg, l,
		quote.WithTTL(cfg.Quote.TTL),
		quote.WithDebounce(cfg.Quote.Debounce, cfg.Quote.MaxDebounce),
		quote.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.Quote.MaxRetries,
			Base:        cfg.Quote.RetryBase,
			Cap:         cfg.Quote.RetryCap,
			JitterFrac:  0.2,
		}),
		quote.WithMetrics(m),
	)
}

// ProvideMarketService creates the candle fetcher and universe
// resolver.
func ProvideMarketService(store repository.MarketStore, bn *binance.Client, cg *coingecko.Client, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *market.Service {
	return market.NewService(store, bn, cg, l,
		market.WithFreshness(cfg.Pipeline.Freshness),
		market.WithMinVolume(cfg.Pipeline.MinVolume24h),
		market.WithTargets(cfg.Pipeline.Targets),
		market.WithMetrics(m),
	)
}

// ProvidePipeline creates the prediction pipeline.
func ProvidePipeline(
	ms *market.Service,
	qs *quote.Service,
	fg *feargreed.Client,
	store repository.MarketStore,
	snapshots cache.Service,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *predict.Pipeline {
	opts := []predict.Option{
		predict.WithTimeframe(repository.DefaultTimeframe(), cfg.Pipeline.CandleCount),
		predict.WithWindow(cfg.Pipeline.WindowHours),
		predict.WithTopN(cfg.Pipeline.TopN),
		predict.WithStaleness(cfg.Pipeline.Staleness),
		predict.WithSnapshots(snapshots),
		predict.WithMetrics(m),
	}
	if producer != nil {
		opts = append(opts, predict.WithPublisher(producer, cfg.Kafka.Topic))
	}
	return predict.NewPipeline(ms, qs, indicator.Compute, fg, store, l, opts...)
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(l *applogger.Logger, pipeline *predict.Pipeline, store repository.MarketStore) *api.PredictionsHandler {
	return api.NewPredictionsHandler(l, pipeline, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *predict.Pipeline,
	store repository.MarketStore,
	producer *pkgkafka.Producer,
	snapshots cache.Service,
	handler *api.PredictionsHandler,
) *server.App {
	app := server.New(cfg, l, pipeline, store, producer, snapshots)
	app.SetHTTPHandler(handler)
	return app
}
