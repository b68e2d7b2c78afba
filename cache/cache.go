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

// Package cache 以參數指紋記住模擬結果。
//
// 淘汰策略是嚴格 FIFO：超過容量時移除最早放入的鍵，不追蹤存取時間。
// 所有讀寫由同一把 mutex 保護。
package cache

import (
	"encoding/json"
	"sync"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// DefaultSize 預設容量
const DefaultSize = 50

// Fingerprint 參數的 canonical JSON：映射欄位以物件輸出、鍵排序，
// 因此內容相同、宣告順序不同的參數得到相同指紋。
func Fingerprint(p *spec.Params) (string, error) {
	if p == nil {
		return "", errs.NewWarn("cache: nil params")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", errs.Wrap(err, "cache: fingerprint failed")
	}
	return string(b), nil
}

// Key 以命名空間區隔指紋。結果取決於產生它的迴圈設定（例如抽數上限），
// 共用同一份快取的 Lab 以各自的設定作為命名空間；空字串就是參數指紋本身。
func Key(ns string, p *spec.Params) (string, error) {
	fp, err := Fingerprint(p)
	if err != nil {
		return "", err
	}
	if ns == "" {
		return fp, nil
	}
	return ns + "|" + fp, nil
}

type Cache struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]*stats.Result
}

// New 建立容量為 size 的快取，size <= 0 使用 DefaultSize。
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache{
		size:  size,
		order: make([]string, 0, size+1),
		items: make(map[string]*stats.Result, size+1),
	}
}

// Get 命中時回傳副本，呼叫端可以自由修改（例如擾動）。
func (c *Cache) Get(p *spec.Params) (*stats.Result, bool) { return c.GetIn("", p) }

// GetIn 同 Get，鍵帶命名空間。
func (c *Cache) GetIn(ns string, p *spec.Params) (*stats.Result, bool) {
	key, err := Key(ns, p)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	r, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Put 存入結果的副本。已存在的鍵只更新內容，不改變 FIFO 位置。
func (c *Cache) Put(p *spec.Params, r *stats.Result) error { return c.PutIn("", p, r) }

// PutIn 同 Put，鍵帶命名空間。
func (c *Cache) PutIn(ns string, p *spec.Params, r *stats.Result) error {
	if r == nil {
		return errs.NewWarn("cache: nil result")
	}
	key, err := Key(ns, p)
	if err != nil {
		return err
	}
	v := r.Clone()
	v.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		c.items[key] = v
		return nil
	}
	c.items[key] = v
	c.order = append(c.order, key)
	for len(c.order) > c.size {
		delete(c.items, c.order[0])
		c.order[0] = ""
		c.order = c.order[1:]
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cache) Size() int { return c.size }

// Keys 目前的鍵，由舊到新
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Purge 清空快取
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.order = c.order[:0]
}
