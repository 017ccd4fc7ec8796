package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinSight/internal/domain/models"
	pkgch "CoinSight/pkg/clickhouse"
	applogger "CoinSight/pkg/logger"
)

// CHMarketStore implements MarketStore backed by ClickHouse. Candles
// live in a ReplacingMergeTree keyed by (asset, ts) so re-fetching a
// window is an idempotent upsert; regime and prediction rows are
// append-only logs.
type CHMarketStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMarketStore(ch *pkgch.Client, l *applogger.Logger) *CHMarketStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHMarketStore{ch: ch, db: ch.DB(), l: l}
}

// SchemaStatements returns the idempotent DDL for the store, applied
// through Client.InitSchema at startup.
func SchemaStatements() []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS coinsight`,
		`CREATE TABLE IF NOT EXISTS coinsight.candles (
            asset LowCardinality(String),
            ts    DateTime,
            open  Float64,
            high  Float64,
            low   Float64,
            close Float64,
            vol   Float64
        ) ENGINE = ReplacingMergeTree()
        PARTITION BY toYYYYMM(ts)
        ORDER BY (asset, ts)`,
		`CREATE TABLE IF NOT EXISTS coinsight.regime_log (
            ts              DateTime,
            btc_change_24h  Float64,
            fear_greed      Int32,
            regime          LowCardinality(String),
            multiplier      Float64
        ) ENGINE = MergeTree()
        PARTITION BY toYYYYMM(ts)
        ORDER BY ts`,
		`CREATE TABLE IF NOT EXISTS coinsight.predictions (
            asset           LowCardinality(String),
            created_at      DateTime,
            window_hours    Int32,
            probability     Float64,
            confidence_tier LowCardinality(String),
            signal_count    Int32,
            net_score       Float64,
            entry_price     Float64,
            stop_loss       Float64,
            take_profit     Float64,
            ret_p25         Float64,
            ret_p50         Float64,
            ret_p75         Float64,
            market_cap_tier LowCardinality(String),
            volatility_tier LowCardinality(String),
            signals         String
        ) ENGINE = MergeTree()
        PARTITION BY toYYYYMM(created_at)
        ORDER BY (created_at, asset)`,
	}
}

func (s *CHMarketStore) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert candles: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO coinsight.candles (asset, ts, open, high, low, close, vol) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert candles: prepare: %w", err)
	}
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Asset, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("upsert candles: exec: %w", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert candles: commit: %w", err)
	}

	s.l.Debug("clickhouse upsert_candles ok",
		applogger.String("asset", candles[0].Asset),
		applogger.Int("rows", len(candles)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHMarketStore) LatestCandle(ctx context.Context, asset string) (*models.Candle, error) {
	const q = `
        SELECT asset, ts, open, high, low, close, vol
        FROM coinsight.candles FINAL
        WHERE asset = ?
        ORDER BY ts DESC
        LIMIT 1
    `
	var c models.Candle
	err := s.db.QueryRowContext(ctx, q, asset).
		Scan(&c.Asset, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse latest_candle query error",
			applogger.String("asset", asset),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest candle: %w", err)
	}
	return &c, nil
}

func (s *CHMarketStore) LatestNCandles(ctx context.Context, asset string, n int) ([]models.Candle, error) {
	const q = `
        SELECT asset, ts, open, high, low, close, vol
        FROM coinsight.candles FINAL
        WHERE asset = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, asset, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("asset", asset),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Asset, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHMarketStore) AppendRegime(ctx context.Context, regime models.MarketRegime) error {
	const q = `
        INSERT INTO coinsight.regime_log (ts, btc_change_24h, fear_greed, regime, multiplier)
        VALUES (?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		regime.Timestamp, regime.BTC24hChange, int32(regime.FearGreedIndex),
		regime.Regime, regime.ThresholdMultiplier)
	if err != nil {
		return fmt.Errorf("append regime: %w", err)
	}
	return nil
}

func (s *CHMarketStore) LatestRegime(ctx context.Context) (*models.MarketRegime, error) {
	const q = `
        SELECT ts, btc_change_24h, fear_greed, regime, multiplier
        FROM coinsight.regime_log
        ORDER BY ts DESC
        LIMIT 1
    `
	var (
		r  models.MarketRegime
		fg int32
	)
	err := s.db.QueryRowContext(ctx, q).
		Scan(&r.Timestamp, &r.BTC24hChange, &fg, &r.Regime, &r.ThresholdMultiplier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest regime: %w", err)
	}
	r.FearGreedIndex = int(fg)
	return &r, nil
}

func (s *CHMarketStore) InsertPrediction(ctx context.Context, p models.Prediction) error {
	sigs, err := json.Marshal(p.Signals)
	if err != nil {
		return fmt.Errorf("insert prediction: marshal signals: %w", err)
	}
	const q = `
        INSERT INTO coinsight.predictions
            (asset, created_at, window_hours, probability, confidence_tier, signal_count,
             net_score, entry_price, stop_loss, take_profit, ret_p25, ret_p50, ret_p75,
             market_cap_tier, volatility_tier, signals)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = s.db.ExecContext(ctx, q,
		p.Asset, p.CreatedAt, int32(p.WindowHours), p.Probability, p.ConfidenceTier,
		int32(p.SignalCount), p.NetScore, p.EntryPrice, p.StopLoss, p.TakeProfit,
		p.ExpectedReturn.P25, p.ExpectedReturn.P50, p.ExpectedReturn.P75,
		p.MarketCapTier, p.VolatilityTier, string(sigs))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *CHMarketStore) LatestPredictions(ctx context.Context, n int) ([]models.Prediction, error) {
	const q = `
        SELECT asset, created_at, window_hours, probability, confidence_tier, signal_count,
               net_score, entry_price, stop_loss, take_profit, ret_p25, ret_p50, ret_p75,
               market_cap_tier, volatility_tier, signals
        FROM coinsight.predictions
        WHERE created_at = (SELECT max(created_at) FROM coinsight.predictions)
        ORDER BY probability DESC, net_score DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		s.l.Error("clickhouse latest_predictions query error", applogger.Error(err))
		return nil, fmt.Errorf("latest predictions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Prediction, 0, n)
	for rows.Next() {
		var (
			p    models.Prediction
			wh   int32
			sc   int32
			sigs string
		)
		if err := rows.Scan(&p.Asset, &p.CreatedAt, &wh, &p.Probability, &p.ConfidenceTier,
			&sc, &p.NetScore, &p.EntryPrice, &p.StopLoss, &p.TakeProfit,
			&p.ExpectedReturn.P25, &p.ExpectedReturn.P50, &p.ExpectedReturn.P75,
			&p.MarketCapTier, &p.VolatilityTier, &sigs); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.WindowHours = int(wh)
		p.SignalCount = int(sc)
		if sigs != "" {
			if err := json.Unmarshal([]byte(sigs), &p.Signals); err != nil {
				return nil, fmt.Errorf("unmarshal signals: %w", err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHMarketStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHMarketStore) Close() error {
	return s.ch.Close()
}
