package journal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/skinscan/internal/retry"
)

// Repository provides persistence APIs for the scan journal.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// Open connects to Postgres using dsn.
func Open(dsn string, policy retry.Policy, logger *zap.Logger) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal: access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewRepository(db, policy, logger), nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRepository creates a new repository instance.
func NewRepository(db *gorm.DB, policy retry.Policy, logger *zap.Logger) *Repository {
	return &Repository{db: db, policy: policy, logger: logger.Named("journal")}
}

// AutoMigrate ensures the schema is available.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanRecord{}, &LabelRecord{})
}

// RecordScan persists an analysis entry.
func (r *Repository) RecordScan(ctx context.Context, rec *ScanRecord) error {
	return r.executeWithRetry(ctx, "journal.record_scan", rec.SessionID, func() error {
		return r.db.WithContext(ctx).Create(rec).Error
	})
}

// RecordLabel persists a label outcome.
func (r *Repository) RecordLabel(ctx context.Context, rec *LabelRecord) error {
	return r.executeWithRetry(ctx, "journal.record_label", rec.SessionID, func() error {
		return r.db.WithContext(ctx).Create(rec).Error
	})
}

// FindScansByROI lists every analysis of the same region, newest first.
func (r *Repository) FindScansByROI(ctx context.Context, roi string) ([]*ScanRecord, error) {
	var recs []*ScanRecord
	err := r.executeWithRetry(ctx, "journal.find_scans", "", func() error {
		return r.db.WithContext(ctx).Where("roi_sha256 = ?", roi).Order("created_at desc").Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Aggregate reads the raw counts behind Summary.
func (r *Repository) Aggregate(ctx context.Context) (Aggregation, error) {
	var agg Aggregation
	err := r.executeWithRetry(ctx, "journal.aggregate", "", func() error {
		db := r.db.WithContext(ctx)
		if err := db.Model(&ScanRecord{}).Count(&agg.ScanCount).Error; err != nil {
			return err
		}
		if err := db.Model(&ScanRecord{}).Where("stored_for_progress = ?", true).Count(&agg.ProgressStoredCount).Error; err != nil {
			return err
		}
		if err := db.Model(&ScanRecord{}).Where("donation_stored = ?", true).Count(&agg.DonatedCount).Error; err != nil {
			return err
		}
		if err := db.Model(&LabelRecord{}).Where("stored = ?", true).Count(&agg.LabelStoredCount).Error; err != nil {
			return err
		}

		var rows []struct {
			Reason string
			Total  int64
		}
		if err := db.Model(&LabelRecord{}).
			Select("reason, count(*) as total").
			Where("stored = ?", false).
			Group("reason").
			Scan(&rows).Error; err != nil {
			return err
		}
		agg.LabelDeclinedCount = 0
		agg.DeclineReasons = make(map[string]int64, len(rows))
		for _, row := range rows {
			agg.DeclineReasons[row.Reason] = row.Total
			agg.LabelDeclinedCount += row.Total
		}
		return nil
	})
	return agg, err
}

// Summary aggregates journal insights.
func (r *Repository) Summary(ctx context.Context) (*Summary, error) {
	agg, err := r.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(agg), nil
}

func (r *Repository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, sessionID, fn)
}
