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

package dto

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// LegacyRequest 舊版前端的參數封包：
//
//	{
//	  "character": {"name": "...", "cards": {"rare": 100, "epic": 20, "legendary": 10}},
//	  "pull": {"cardsPerPull": 10, "rarityDistribution": {"rare": 0.8, "epic": 0.15, "legendary": 0.05}},
//	  "cost": {"gemsPerPull": 160, "dollarsPerHundredGems": 0.99}
//	}
//
// 舊版以「每 100 顆鑽石的美元價格」表示換算率，因此 ConversionRate = dollarsPerHundredGems / 100。
type LegacyRequest struct {
	Name   string
	Params *spec.Params
}

// DecodeLegacyRequest 解碼舊版封包。未提供的欄位沿用內建 default 方案。
func DecodeLegacyRequest(raw []byte) (*LegacyRequest, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errs.NewWarn("invalid json")
	}
	root := gjson.ParseBytes(raw)
	p := spec.DefaultParams()
	var problems []string

	if v := root.Get("character.cards"); v.Exists() {
		p.Targets = p.Targets[:0]
		if err := eachNumber(v, func(name string, n gjson.Result) error {
			c, err := intOf(n)
			if err != nil {
				return err
			}
			p.Targets = append(p.Targets, spec.Target{Name: name, Count: c})
			return nil
		}); err != nil {
			problems = append(problems, "character.cards: "+err.Error())
		}
	}
	if v := root.Get("pull.rarityDistribution"); v.Exists() {
		p.Weights = p.Weights[:0]
		if err := eachNumber(v, func(name string, w gjson.Result) error {
			p.Weights = append(p.Weights, spec.Weight{Name: name, Value: w.Float()})
			return nil
		}); err != nil {
			problems = append(problems, "pull.rarityDistribution: "+err.Error())
		}
	}
	if v := root.Get("pull.cardsPerPull"); v.Exists() {
		n, err := intOf(v)
		if err != nil {
			problems = append(problems, "pull.cardsPerPull: "+err.Error())
		}
		p.DrawSize = n
	}
	if v := root.Get("cost.gemsPerPull"); v.Exists() {
		f, err := floatOf(v)
		if err != nil {
			problems = append(problems, "cost.gemsPerPull: "+err.Error())
		}
		p.CostPerDraw = f
	}
	if v := root.Get("cost.dollarsPerHundredGems"); v.Exists() {
		f, err := floatOf(v)
		if err != nil {
			problems = append(problems, "cost.dollarsPerHundredGems: "+err.Error())
		}
		p.ConversionRate = f / 100
	}
	if len(problems) > 0 {
		return nil, errs.Wrap(spec.ErrInvalidDistribution, strings.Join(problems, "; "))
	}
	return &LegacyRequest{Name: root.Get("character.name").String(), Params: p}, nil
}

// LegacyPull 舊版逐物品紀錄
type LegacyPull struct {
	Pull     int    `json:"pull"`
	Rarity   string `json:"rarity"`
	IsNeeded bool   `json:"isNeeded"`
}

type LegacyChart struct {
	ProgressOverTime []map[string]float64 `json:"progressOverTime"`
	CardDistribution map[string]float64   `json:"cardDistribution"`
}

// LegacyResult 舊版前端期待的結果形狀
type LegacyResult struct {
	TotalPulls    int            `json:"totalPulls"`
	TotalGems     float64        `json:"totalGems"`
	TotalDollars  float64        `json:"totalDollars"`
	CardsObtained map[string]int `json:"cardsObtained"`
	ExtraCards    map[string]int `json:"extraCards"`
	PullsHistory  []LegacyPull   `json:"pullsHistory"`
	ChartData     LegacyChart    `json:"chartData"`
	Logs          []string       `json:"logs"`
	Status        string         `json:"status"`
	Warning       string         `json:"warning,omitempty"`
}

// NewLegacyResult 把結果轉成舊版形狀；進度序列的鍵為 "<分類>Progress"。
func NewLegacyResult(p *spec.Params, r *stats.Result) LegacyResult {
	r.Done()
	out := LegacyResult{
		TotalPulls:    r.Summary.Draws,
		TotalGems:     r.Summary.TotalCost,
		TotalDollars:  r.Summary.ConvertedCost,
		CardsObtained: make(map[string]int, len(r.Categories)),
		ExtraCards:    make(map[string]int, len(r.Categories)),
		PullsHistory:  make([]LegacyPull, 0, len(r.History)),
		ChartData: LegacyChart{
			ProgressOverTime: make([]map[string]float64, 0, len(r.Series)),
			CardDistribution: make(map[string]float64, len(r.Categories)),
		},
		Logs:    r.Log,
		Status:  r.Status.String(),
		Warning: Warning(p, r),
	}
	for _, c := range r.Categories {
		out.CardsObtained[c.Name] = c.Obtained
		out.ExtraCards[c.Name] = c.Surplus
		out.ChartData.CardDistribution[c.Name] = c.ActualPct
	}
	for _, h := range r.History {
		out.PullsHistory = append(out.PullsHistory, LegacyPull{Pull: h.Draw, Rarity: h.Category, IsNeeded: h.Counted})
	}
	for _, pt := range r.Series {
		row := map[string]float64{"pull": float64(pt.Draw), "gemsSpent": pt.Cost}
		for i, v := range pt.Progress {
			if i < len(r.Categories) {
				row[r.Categories[i].Name+"Progress"] = v
			}
		}
		out.ChartData.ProgressOverTime = append(out.ChartData.ProgressOverTime, row)
	}
	return out
}
