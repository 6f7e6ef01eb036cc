// Package journal records analyses and label outcomes locally.
package journal

import (
	"context"
	"time"
)

// ScanRecord is one successful analysis.
type ScanRecord struct {
	ID                uint      `gorm:"primaryKey"`
	SessionID         string    `gorm:"column:session_id;size:64;index"`
	ROISHA256         string    `gorm:"column:roi_sha256;size:64;index"`
	ModelVersion      string    `gorm:"column:model_version;size:64"`
	StoredForProgress bool      `gorm:"column:stored_for_progress"`
	DonationStored    bool      `gorm:"column:donation_stored"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScanRecord) TableName() string {
	return "scan_records"
}

// LabelRecord is one label submission answered by the service.
type LabelRecord struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"column:session_id;size:64;index"`
	ROISHA256  string    `gorm:"column:roi_sha256;size:64;index"`
	LabelCount int       `gorm:"column:label_count"`
	Stored     bool      `gorm:"column:stored"`
	Reason     string    `gorm:"column:reason;size:128"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (LabelRecord) TableName() string {
	return "label_records"
}

// Journal defines the persistence operations used by the scan flow.
type Journal interface {
	RecordScan(ctx context.Context, rec *ScanRecord) error
	RecordLabel(ctx context.Context, rec *LabelRecord) error
	Summary(ctx context.Context) (*Summary, error)
	FindScansByROI(ctx context.Context, roi string) ([]*ScanRecord, error)
}

// Nop discards every record.
type Nop struct{}

// RecordScan implements Journal.
func (Nop) RecordScan(context.Context, *ScanRecord) error { return nil }

// RecordLabel implements Journal.
func (Nop) RecordLabel(context.Context, *LabelRecord) error { return nil }

// Summary implements Journal with an empty summary.
func (Nop) Summary(context.Context) (*Summary, error) { return &Summary{}, nil }

// FindScansByROI implements Journal with no history.
func (Nop) FindScansByROI(context.Context, string) ([]*ScanRecord, error) { return nil, nil }
