package repository

import (
	"context"
	"errors"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, reportID string) (*models.Report, error)
	List(ctx context.Context, status models.ReportStatus, page Page) ([]models.Report, int64, error)
	Close(ctx context.Context, reportID string, status models.ReportStatus, resolverID, note string) (*models.Report, error)
	CountOpen(ctx context.Context) (int64, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if report == nil || !models.ValidReportTarget(report.TargetType) || !models.ValidReportReason(report.Reason) {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) Get(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).First(&report, "id = ?", reportID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// List filters by status; an empty status lists everything
func (r *reportRepository) List(ctx context.Context, status models.ReportStatus, page Page) ([]models.Report, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Report{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []models.Report
	err := q.Order("created_at ASC").Limit(page.Limit).Offset(page.Offset).Find(&reports).Error
	return reports, total, err
}

// Close resolves or dismisses an open report
func (r *reportRepository) Close(ctx context.Context, reportID string, status models.ReportStatus, resolverID, note string) (*models.Report, error) {
	if status != models.ReportResolved && status != models.ReportDismissed {
		return nil, ErrInvalidInput
	}
	report, err := r.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportOpen {
		return nil, ErrReportClosed
	}
	now := time.Now().UTC()
	err = r.db.WithContext(ctx).Model(report).Updates(map[string]interface{}{
		"status":          status,
		"resolved_by":     resolverID,
		"resolution_note": note,
		"resolved_at":     &now,
	}).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, reportID)
}

func (r *reportRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).Where("status = ?", models.ReportOpen).Count(&count).Error
	return count, err
}
