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

// Package sampler 提供分類加權抽樣。
//
// 兩種實作共用 Picker 介面：
//   - Cumulative：一次均勻亂數 + 依宣告順序的累積掃描（預設，固定種子下可重現且易於推導）
//   - Alias     ：整數版 Vose alias method，O(1) 抽樣，適合分類很多的分布
package sampler

import (
	"fmt"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
)

// Numbers 權重允許的數值型別
type Numbers interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Picker 一次回傳一個分類索引。
type Picker interface {
	Pick(c *core.Core) int
	Name(i int) string
	Len() int
}

// Kind 抽樣器種類
type Kind string

const (
	KindScan  Kind = "scan"
	KindAlias Kind = "alias"
)

// Build 依種類建立 Picker，未知種類視為 scan。
func Build(kind Kind, ws []spec.Weight) (Picker, error) {
	switch kind {
	case KindAlias:
		return NewAlias(ws)
	default:
		return NewCumulative(ws)
	}
}

// Normalize 把任意數值權重轉成機率，總和 <= 0 時回傳 nil。
func Normalize[T Numbers](ws []T) []float64 {
	total := 0.0
	for _, w := range ws {
		total += float64(w)
	}
	if total <= 0 {
		return nil
	}
	out := make([]float64, len(ws))
	for i, w := range ws {
		out[i] = float64(w) / total
	}
	return out
}

// checkWeights 抽樣器建表前的共同檢查，錯誤包裝 spec.ErrInvalidDistribution。
func checkWeights(ws []spec.Weight) (float64, error) {
	if len(ws) == 0 {
		return 0, errs.Wrap(spec.ErrInvalidDistribution, "sampler: no categories")
	}
	total := 0.0
	for _, w := range ws {
		if !(w.Value >= 0) || w.Value > 1e300 {
			return 0, errs.Wrap(spec.ErrInvalidDistribution, fmt.Sprintf("sampler: bad weight %v for %q", w.Value, w.Name))
		}
		total += w.Value
	}
	if total <= 0 {
		return 0, errs.Wrap(spec.ErrInvalidDistribution, "sampler: no category with weight > 0")
	}
	return total, nil
}
