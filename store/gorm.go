// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// reportRow 資料表列；參數與結果以 JSON 文字保存，列表欄位另外展開方便排序與篩選。
type reportRow struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Title       string `gorm:"type:varchar(200);not null"`
	Description string `gorm:"type:text"`
	Public      bool   `gorm:"not null;default:false;index"`
	Status      string `gorm:"type:varchar(16);not null"`
	Draws       int    `gorm:"not null"`
	TotalCost   float64
	Params      string    `gorm:"type:text;not null"`
	Result      string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (reportRow) TableName() string { return "gachalab_reports" }

func toRow(r *Report) (*reportRow, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return nil, errs.Wrap(err, "store.gorm: encode params failed")
	}
	result, err := json.Marshal(r.Result)
	if err != nil {
		return nil, errs.Wrap(err, "store.gorm: encode result failed")
	}
	e := r.Entry()
	return &reportRow{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Public:      r.Public,
		Status:      e.Status.String(),
		Draws:       e.Draws,
		TotalCost:   e.TotalCost,
		Params:      string(params),
		Result:      string(result),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (row *reportRow) report() (*Report, error) {
	r := &Report{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Public:      row.Public,
		Params:      new(spec.Params),
		Result:      new(stats.Result),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Params), r.Params); err != nil {
		return nil, errs.Wrapf(err, "store.gorm: decode params of %s failed", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Result), r.Result); err != nil {
		return nil, errs.Wrapf(err, "store.gorm: decode result of %s failed", row.ID)
	}
	return r, nil
}

func (row *reportRow) entry() Entry {
	e := Entry{
		ID:        row.ID,
		Title:     row.Title,
		Public:    row.Public,
		Draws:     row.Draws,
		TotalCost: row.TotalCost,
		CreatedAt: row.CreatedAt,
	}
	_ = e.Status.UnmarshalText([]byte(row.Status))
	return e
}

// OpenPostgres 連線 postgres，gorm 的日誌導向 slog。
func OpenPostgres(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	gl := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, errs.Wrap(err, "store.gorm: connect failed")
	}
	return db, nil
}

// GormStore 以 gorm 保存報告
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore 建立儲存並（可選）自動建表
func NewGormStore(db *gorm.DB, migrate bool) (*GormStore, error) {
	if db == nil {
		return nil, errs.NewFatal("store.gorm: nil db")
	}
	if migrate {
		if err := db.AutoMigrate(&reportRow{}); err != nil {
			return nil, errs.Wrap(err, "store.gorm: migrate failed")
		}
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (g *GormStore) Save(ctx context.Context, r *Report) (string, error) {
	if err := prepare(r, g.now()); err != nil {
		return "", err
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old reportRow
		err := tx.Select("created_at").First(&old, "id = ?", r.ID).Error
		switch {
		case err == nil:
			r.CreatedAt = old.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		row, err := toRow(r)
		if err != nil {
			return err
		}
		return tx.Save(row).Error
	})
	if err != nil {
		return "", errs.Wrap(err, "store.gorm: save failed")
	}
	return r.ID, nil
}

func (g *GormStore) Get(ctx context.Context, id string) (*Report, error) {
	if !validID(id) {
		return nil, errs.Wrapf(ErrNotFound, "report %q", id)
	}
	var row reportRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.Wrapf(ErrNotFound, "report %q", id)
	}
	if err != nil {
		return nil, errs.Wrap(err, "store.gorm: get failed")
	}
	return row.report()
}

func (g *GormStore) List(ctx context.Context) ([]Entry, error) {
	var rows []reportRow
	err := g.db.WithContext(ctx).
		Select("id", "title", "public", "status", "draws", "total_cost", "created_at").
		Order("created_at desc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "store.gorm: list failed")
	}
	out := make([]Entry, len(rows))
	for i := range rows {
		out[i] = rows[i].entry()
	}
	return out, nil
}

func (g *GormStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return errs.Wrapf(ErrNotFound, "report %q", id)
	}
	res := g.db.WithContext(ctx).Delete(&reportRow{}, "id = ?", id)
	if res.Error != nil {
		return errs.Wrap(res.Error, "store.gorm: delete failed")
	}
	if res.RowsAffected == 0 {
		return errs.Wrapf(ErrNotFound, "report %q", id)
	}
	return nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return errs.Wrap(err, "store.gorm: close")
	}
	return sqlDB.Close()
}
