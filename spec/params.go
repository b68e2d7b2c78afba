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

// Package spec 定義抽卡成本模擬的領域型別：輸入參數、終止狀態與抽取紀錄。
//
// 分類（category）刻意以「有序的開放映射」表示，而不是固定的稀有度 enum：
// 宣告順序決定加權抽樣的累積掃描順序，因此在固定種子下結果可重現。
package spec

import (
	"encoding/json"
	"slices"
)

// Target 某分類需要收集的數量
type Target struct {
	Name  string `json:"name"  yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Weight 某分類在單次抽取中的權重（不需正規化）
type Weight struct {
	Name  string  `json:"name"  yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Params 一次模擬的輸入參數，建立後視為唯讀。
type Params struct {
	Targets        []Target // 目標數量（宣告順序）
	Weights        []Weight // 分類權重（宣告順序）
	DrawSize       int      // 每抽產出的物品數
	CostPerDraw    float64  // 每抽的抽象成本（例如鑽石）
	ConversionRate float64  // 抽象成本換算第二貨幣的比率
}

// TargetOf 回傳分類的目標數量，不存在時回傳 0,false。
func (p *Params) TargetOf(name string) (int, bool) {
	for _, t := range p.Targets {
		if t.Name == name {
			return t.Count, true
		}
	}
	return 0, false
}

// WeightOf 回傳分類權重，不存在時回傳 0,false。
func (p *Params) WeightOf(name string) (float64, bool) {
	for _, w := range p.Weights {
		if w.Name == name {
			return w.Value, true
		}
	}
	return 0, false
}

// TotalWeight 權重總和
func (p *Params) TotalWeight() float64 {
	total := 0.0
	for _, w := range p.Weights {
		total += w.Value
	}
	return total
}

// Categories 回傳所有出現過的分類：先依權重宣告順序，再補上只出現在 Targets 的分類。
func (p *Params) Categories() []string {
	out := make([]string, 0, len(p.Weights)+len(p.Targets))
	for _, w := range p.Weights {
		if !slices.Contains(out, w.Name) {
			out = append(out, w.Name)
		}
	}
	for _, t := range p.Targets {
		if !slices.Contains(out, t.Name) {
			out = append(out, t.Name)
		}
	}
	return out
}

// Clone 深拷貝
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Targets = slices.Clone(p.Targets)
	cp.Weights = slices.Clone(p.Weights)
	return &cp
}

// TargetMap / WeightMap 給序列化與指紋使用，會失去宣告順序。
func (p *Params) TargetMap() map[string]int {
	m := make(map[string]int, len(p.Targets))
	for _, t := range p.Targets {
		m[t.Name] = t.Count
	}
	return m
}

func (p *Params) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(p.Weights))
	for _, w := range p.Weights {
		m[w.Name] = w.Value
	}
	return m
}

// wireParams 是對外 JSON 形狀：映射以物件表示。
type wireParams struct {
	TargetCounts    map[string]int     `json:"targetCounts"`
	DrawSize        int                `json:"drawSize"`
	CategoryWeights map[string]float64 `json:"categoryWeights"`
	CostPerDraw     float64            `json:"costPerDraw"`
	ConversionRate  float64            `json:"costConversionRate"`
}

// MarshalJSON 以物件輸出映射欄位；encoding/json 會依鍵排序，因此輸出是 canonical 的。
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireParams{
		TargetCounts:    p.TargetMap(),
		DrawSize:        p.DrawSize,
		CategoryWeights: p.WeightMap(),
		CostPerDraw:     p.CostPerDraw,
		ConversionRate:  p.ConversionRate,
	})
}

// UnmarshalJSON 接受同樣的物件形狀。
//
// encoding/json 無法保留物件鍵順序，這裡退而以名稱排序；需要宣告順序時請走 dto.ParseParams。
func (p *Params) UnmarshalJSON(data []byte) error {
	var w wireParams
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.DrawSize = w.DrawSize
	p.CostPerDraw = w.CostPerDraw
	p.ConversionRate = w.ConversionRate
	p.Targets = p.Targets[:0]
	for _, k := range sortedKeys(w.TargetCounts) {
		p.Targets = append(p.Targets, Target{Name: k, Count: w.TargetCounts[k]})
	}
	p.Weights = p.Weights[:0]
	for _, k := range sortedKeys(w.CategoryWeights) {
		p.Weights = append(p.Weights, Weight{Name: k, Value: w.CategoryWeights[k]})
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
