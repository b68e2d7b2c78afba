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

package sampler

import (
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
)

// Cumulative 累積權重掃描。
//
// 抽樣：u = Float64() * total，回傳第一個 cum[i] > u 的索引。
// 權重為 0 的分類區間長度為 0，永遠不會被選中。
// 浮點誤差造成 u 落在最後邊界之外時，回傳最後一個正權重分類。
type Cumulative struct {
	names []string
	cum   []float64
	total float64
	last  int
}

// NewCumulative 依宣告順序建表。
func NewCumulative(ws []spec.Weight) (*Cumulative, error) {
	total, err := checkWeights(ws)
	if err != nil {
		return nil, err
	}
	s := &Cumulative{
		names: make([]string, len(ws)),
		cum:   make([]float64, len(ws)),
		total: total,
	}
	run := 0.0
	for i, w := range ws {
		run += w.Value
		s.names[i] = w.Name
		s.cum[i] = run
		if w.Value > 0 {
			s.last = i
		}
	}
	return s, nil
}

func (s *Cumulative) Pick(c *core.Core) int {
	u := c.Float64() * s.total
	for i, edge := range s.cum {
		if u < edge {
			return i
		}
	}
	return s.last
}

func (s *Cumulative) Name(i int) string { return s.names[i] }
func (s *Cumulative) Len() int          { return len(s.names) }

// Probabilities 各分類的正規化機率（宣告順序）
func (s *Cumulative) Probabilities() []float64 {
	out := make([]float64, len(s.cum))
	prev := 0.0
	for i, edge := range s.cum {
		out[i] = (edge - prev) / s.total
		prev = edge
	}
	return out
}
