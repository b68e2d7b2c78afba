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

package spec

import (
	"fmt"
	"math"
	"strings"

	"github.com/zintix-labs/gachalab/errs"
)

// ErrInvalidDistribution 是核心唯一的硬錯誤：參數在任何抽取之前就被拒絕。
//
// 所有驗證錯誤都包裝它，呼叫端以 errors.Is(err, spec.ErrInvalidDistribution) 判斷。
// 分級為 Warn（參數問題，傳輸層對應 4xx）。
var ErrInvalidDistribution = errs.NewWarn("invalid distribution")

func invalid(msg string) error {
	return errs.Wrap(ErrInvalidDistribution, msg)
}

// Validate 檢查參數並一次回報所有問題。
//
// 權重為 0 但目標 > 0 的分類是允許的：該次模擬必定以 StatusExhausted 結束。
// 真正無法抽樣（沒有任何正權重）才視為錯誤。
func (p *Params) Validate() error {
	if p == nil {
		return invalid("nil params")
	}
	var problems []string

	if len(p.Weights) == 0 {
		problems = append(problems, "categoryWeights is empty")
	}
	seen := make(map[string]bool, len(p.Weights))
	total := 0.0
	for _, w := range p.Weights {
		switch {
		case w.Name == "":
			problems = append(problems, "weight with empty category name")
		case seen[w.Name]:
			problems = append(problems, fmt.Sprintf("duplicate weight for %q", w.Name))
		}
		seen[w.Name] = true
		if math.IsNaN(w.Value) || math.IsInf(w.Value, 0) || w.Value < 0 {
			problems = append(problems, fmt.Sprintf("weight of %q must be a finite non-negative number, got %v", w.Name, w.Value))
			continue
		}
		total += w.Value
	}
	if len(p.Weights) > 0 && total <= 0 {
		problems = append(problems, "total weight must be > 0")
	}

	seenT := make(map[string]bool, len(p.Targets))
	for _, t := range p.Targets {
		if seenT[t.Name] {
			problems = append(problems, fmt.Sprintf("duplicate target for %q", t.Name))
		}
		seenT[t.Name] = true
		if t.Count < 0 {
			problems = append(problems, fmt.Sprintf("target of %q must be >= 0, got %d", t.Name, t.Count))
		}
		if !seen[t.Name] {
			problems = append(problems, fmt.Sprintf("target category %q has no weight", t.Name))
		}
	}

	if p.DrawSize < 1 {
		problems = append(problems, fmt.Sprintf("drawSize must be >= 1, got %d", p.DrawSize))
	}
	if !(p.CostPerDraw > 0) || math.IsInf(p.CostPerDraw, 0) {
		problems = append(problems, fmt.Sprintf("costPerDraw must be > 0, got %v", p.CostPerDraw))
	}
	if !(p.ConversionRate > 0) || math.IsInf(p.ConversionRate, 0) {
		problems = append(problems, fmt.Sprintf("costConversionRate must be > 0, got %v", p.ConversionRate))
	}

	if len(problems) > 0 {
		return invalid(strings.Join(problems, "; "))
	}
	return nil
}

// ZeroWeightTargets 回傳權重為 0 但目標 > 0 的分類（這些分類永遠無法達成）。
func (p *Params) ZeroWeightTargets() []string {
	var out []string
	for _, t := range p.Targets {
		if t.Count <= 0 {
			continue
		}
		if w, ok := p.WeightOf(t.Name); ok && w == 0 {
			out = append(out, t.Name)
		}
	}
	return out
}
