package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExecutionSQLRepo struct {
	db *gorm.DB
}

func NewExecutionSQLRepo(db *gorm.DB) *ExecutionSQLRepo {
	return &ExecutionSQLRepo{db: db}
}

func (r *ExecutionSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *ExecutionSQLRepo) Create(ctx context.Context, record *ExecutionRecord) (*ExecutionRecord, error) {
	return record, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}

func (r *ExecutionSQLRepo) BulkCreate(ctx context.Context, records []*ExecutionRecord) ([]*ExecutionRecord, error) {
	return records, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}
