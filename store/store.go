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

// Package store 保存使用者命名過的模擬報告。
//
// 三種實作共用 ReportStore 介面：
//   - MemStore  : 行程內，測試與單機開發用
//   - FileStore : 每份報告一個 zstd 壓縮的 JSON 檔
//   - GormStore : gorm + postgres，給多實例部署
package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// ErrNotFound 指定的報告不存在
var ErrNotFound = errs.NewMissing("report not found")

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

// Report 一份保存的模擬：輸入參數與當時的結果
type Report struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Public      bool          `json:"public"`
	Params      *spec.Params  `json:"params"`
	Result      *stats.Result `json:"result"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Entry 列表用的摘要，不含完整結果
type Entry struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Public    bool        `json:"public"`
	Status    spec.Status `json:"status"`
	Draws     int         `json:"draws"`
	TotalCost float64     `json:"totalCost"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ReportStore 報告的持久化介面，所有實作都必須併發安全。
type ReportStore interface {
	Save(ctx context.Context, r *Report) (string, error)
	Get(ctx context.Context, id string) (*Report, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Entry 取出列表摘要
func (r *Report) Entry() Entry {
	e := Entry{ID: r.ID, Title: r.Title, Public: r.Public, CreatedAt: r.CreatedAt}
	if r.Result != nil {
		e.Status = r.Result.Status
		if r.Result.Summary != nil {
			e.Draws = r.Result.Summary.Draws
			e.TotalCost = r.Result.Summary.TotalCost
		}
	}
	return e
}

// Clone 深拷貝
func (r *Report) Clone() *Report {
	cp := *r
	cp.Params = r.Params.Clone()
	cp.Result = r.Result.Clone()
	return &cp
}

// prepare 檢查並補齊欄位：空 ID 產生 uuid，時間戳記以 now 更新。
func prepare(r *Report, now time.Time) error {
	if r == nil {
		return errs.NewWarn("nil report")
	}
	r.Title = strings.TrimSpace(r.Title)
	var problems []string
	if r.Title == "" {
		problems = append(problems, "title is required")
	}
	if len(r.Title) > MaxTitleLen {
		problems = append(problems, "title too long")
	}
	if len(r.Description) > MaxDescriptionLen {
		problems = append(problems, "description too long")
	}
	if r.Params == nil {
		problems = append(problems, "params is required")
	} else if err := r.Params.Validate(); err != nil {
		return errs.Wrap(err, "store: report params")
	}
	if r.Result == nil || r.Result.Summary == nil {
		problems = append(problems, "result is required")
	}
	if len(problems) > 0 {
		return errs.NewWarn("store: " + strings.Join(problems, "; "))
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		return errs.Warnf("store: invalid report id %q", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Result.Done()
	return nil
}

// validID 只接受 uuid，避免 id 被拿來組出任意路徑。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// sortEntries 新的在前，同時間依 ID 排序讓輸出穩定。
func sortEntries(es []Entry) {
	slices.SortFunc(es, func(a, b Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
