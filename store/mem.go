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
	"sync"
	"time"

	"github.com/zintix-labs/gachalab/errs"
)

// MemStore 行程內的報告儲存
type MemStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
	now     func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{reports: make(map[string]*Report), now: time.Now}
}

func (m *MemStore) Save(ctx context.Context, r *Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "store.mem: save")
	}
	if err := prepare(r, m.now()); err != nil {
		return "", err
	}
	m.mu.Lock()
	if old, ok := m.reports[r.ID]; ok {
		r.CreatedAt = old.CreatedAt
	}
	m.reports[r.ID] = r.Clone()
	m.mu.Unlock()
	return r.ID, nil
}

func (m *MemStore) Get(ctx context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, errs.Wrapf(ErrNotFound, "report %q", id)
	}
	return r.Clone(), nil
}

func (m *MemStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r.Entry())
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return errs.Wrapf(ErrNotFound, "report %q", id)
	}
	delete(m.reports, id)
	return nil
}

func (m *MemStore) Close() error { return nil }
