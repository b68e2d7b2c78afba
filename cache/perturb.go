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

package cache

import (
	"github.com/shopspring/decimal"
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/stats"
)

// Perturber 命中快取後對結果加上小幅隨機擾動，讓重複查詢看起來不完全相同。
//
// 這是產品行為，不是正確性需求：由呼叫端在 Get 之後套用，測試可直接不套用。
// 只動數值呈現欄位：成本共用一個 ±CostPct% 係數，實際占比各自 ±SharePct% 後重新正規化為 100。
// 抽數、計數、狀態與逐物品紀錄永遠不變。
type Perturber struct {
	CostPct  float64 `yaml:"cost_pct"  json:"costPct"`
	SharePct float64 `yaml:"share_pct" json:"sharePct"`
}

func DefaultPerturber() Perturber {
	return Perturber{CostPct: 2, SharePct: 5}
}

// Apply 回傳擾動後的副本，r 本身不會被修改。
func (pt Perturber) Apply(r *stats.Result, c *core.Core) *stats.Result {
	out := r.Clone()
	if out == nil || out.Summary == nil {
		return out
	}
	out.Done()

	f := c.Jitter(pt.CostPct)
	out.Summary.TotalCost = scale(out.Summary.TotalCost, f, 2)
	out.Summary.ConvertedCost = scale(out.Summary.ConvertedCost, f, 6)
	for i := range out.Series {
		out.Series[i].Cost = scale(out.Series[i].Cost, f, 2)
	}

	sum := 0.0
	factors := make([]float64, len(out.Categories))
	for i := range out.Categories {
		factors[i] = c.Jitter(pt.SharePct)
		sum += out.Categories[i].ActualPct * factors[i]
	}
	if sum <= 0 {
		return out
	}
	for i := range out.Categories {
		cs := &out.Categories[i]
		k := factors[i] * 100 / sum
		cs.ActualPct *= k
		cs.ActualCI.Lo = min(100, cs.ActualCI.Lo*k)
		cs.ActualCI.Hi = min(100, cs.ActualCI.Hi*k)
	}
	return out
}

func scale(v, f float64, places int32) float64 {
	s, _ := decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(f)).Round(places).Float64()
	return s
}
