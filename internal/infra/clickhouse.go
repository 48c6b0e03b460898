package infra

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/metrics"
	"github.com/golang-migrate/migrate/v4"
	chmigrate "github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/clickhouse/*.sql
var clickhouseMigrations embed.FS

const (
	analyticsBufferSize = 1000
	analyticsBatchSize  = 100
	analyticsFlushEvery = 5 * time.Second
)

// ClickAnalytics mirrors recorded clicks into ClickHouse for reporting.
// Pushes never block: when the buffer is full the click is dropped and counted.
type ClickAnalytics struct {
	db     *sql.DB
	buffer chan domain.Click
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

// OpenClickAnalytics connects, applies the embedded ClickHouse migrations and
// starts the batch writer.
func OpenClickAnalytics(cfg *Config, logger *slog.Logger) (*ClickAnalytics, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	if err := migrateClickHouse(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	a := &ClickAnalytics{
		db:     db,
		buffer: make(chan domain.Click, analyticsBufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a, nil
}

func migrateClickHouse(db *sql.DB, logger *slog.Logger) error {
	src, err := iofs.New(clickhouseMigrations, "migrations/clickhouse")
	if err != nil {
		return fmt.Errorf("open clickhouse migrations: %w", err)
	}
	driver, err := chmigrate.WithInstance(db, &chmigrate.Config{})
	if err != nil {
		return fmt.Errorf("clickhouse migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "clickhouse", driver)
	if err != nil {
		return fmt.Errorf("create clickhouse migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("clickhouse migrate up: %w", err)
	}
	logger.Info("clickhouse migrations applied")
	return nil
}

// PushClick queues c for the next batch.
func (a *ClickAnalytics) PushClick(c domain.Click) {
	select {
	case a.buffer <- c:
	default:
		metrics.AnalyticsDropped.Inc()
		a.logger.Warn("analytics buffer full, dropping click", "click_id", c.ID)
	}
}

func (a *ClickAnalytics) run() {
	defer close(a.done)

	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	batch := make([]domain.Click, 0, analyticsBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.write(batch); err != nil {
			a.logger.Warn("clickhouse batch write failed", "clicks", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case c, ok := <-a.buffer:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= analyticsBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (a *ClickAnalytics) write(clicks []domain.Click) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clicks (click_id, visitor_id, tracking_link_id, offer_id, split_test_id, variant_id,
		                    country, city, device, browser, os, utm_source, utm_campaign, referer, created_at)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, c := range clicks {
		cc := c.Context
		if _, err := stmt.ExecContext(ctx, c.ID, c.VisitorID, c.TrackingLinkID, c.OfferID, c.SplitTestID, c.VariantID,
			cc.Country, cc.City, cc.Device, cc.Browser, cc.OS, cc.UTM.Source, cc.UTM.Campaign, cc.Referer, c.CreatedAt); err != nil {
			return fmt.Errorf("append click %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Close flushes buffered clicks and closes the connection.
// PushClick must not be called after Close.
func (a *ClickAnalytics) Close() error {
	a.once.Do(func() { close(a.buffer) })
	<-a.done
	return a.db.Close()
}
