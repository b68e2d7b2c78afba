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
	"math"
	"math/bits"

	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
)

// weightScale 實數權重轉整數時的解析度（總和約為此值）。
const weightScale = 1 << 30

// AliasTable 整數版 Vose alias method。
//
//   - Prob[i]    : weight[i] * Size，與 Total 做整數比較，避免 0.999... != 1.0 的浮點誤差
//   - Aliases[i] : 槽位 i 機率不足時的補位索引
//
// 建表 O(N)、抽樣 O(1)（固定兩次 IntN），記憶體與權重總和無關。
type AliasTable struct {
	Prob    []int
	Aliases []int
	Size    int
	Total   int
}

// BuildAliasTable 以非負整數權重建表。負權重、全零或乘法溢位會 panic；
// 對外請走 NewAlias，它會先檢查並回傳 error。
func BuildAliasTable(weights []int) *AliasTable {
	n := len(weights)
	if n == 0 {
		return &AliasTable{}
	}
	total := uint64(0)
	for _, w := range weights {
		if w < 0 {
			panic("AliasTable: negative weight encountered")
		}
		if total > uint64(math.MaxInt)-uint64(w) {
			panic("AliasTable: total weight overflow int range")
		}
		total += uint64(w)
	}
	if total == 0 {
		panic("AliasTable: all weights are zero")
	}
	if !isSafeMultiply(int(total), n) {
		panic("AliasTable: weights are too large, causing overflow")
	}

	prob := make([]int, n)
	aliases := make([]int, n)
	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i, w := range weights {
		prob[i] = w * n
		if prob[i] < int(total) {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}
	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		aliases[s] = l
		prob[l] = prob[l] + prob[s] - int(total) // 維持 sum(prob) = total * n
		if prob[l] < int(total) {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}
	return &AliasTable{Prob: prob, Aliases: aliases, Size: n, Total: int(total)}
}

func isSafeMultiply(a, b int) bool {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return hi == 0 && lo <= math.MaxInt64
}

// Pick 回傳索引，空表回傳 -1。
func (at *AliasTable) Pick(c *core.Core) int {
	if at.Size == 0 {
		return -1
	}
	idx := c.IntN(at.Size)
	if c.IntN(at.Total) < at.Prob[idx] {
		return idx
	}
	return at.Aliases[idx]
}

// ScaleWeights 把實數權重等比例轉成整數；正權重至少為 1，零權重維持 0。
func ScaleWeights(ws []float64) []int {
	total := 0.0
	for _, w := range ws {
		total += w
	}
	out := make([]int, len(ws))
	if total <= 0 {
		return out
	}
	for i, w := range ws {
		if w <= 0 {
			continue
		}
		out[i] = max(1, int(math.Round(w/total*weightScale)))
	}
	return out
}

// Alias 帶分類名稱的 alias 抽樣器。
type Alias struct {
	names []string
	table *AliasTable
}

func NewAlias(ws []spec.Weight) (*Alias, error) {
	if _, err := checkWeights(ws); err != nil {
		return nil, err
	}
	names := make([]string, len(ws))
	vals := make([]float64, len(ws))
	for i, w := range ws {
		names[i] = w.Name
		vals[i] = w.Value
	}
	return &Alias{names: names, table: BuildAliasTable(ScaleWeights(vals))}, nil
}

func (a *Alias) Pick(c *core.Core) int { return a.table.Pick(c) }
func (a *Alias) Name(i int) string     { return a.names[i] }
func (a *Alias) Len() int              { return len(a.names) }
