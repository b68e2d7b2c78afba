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

package stats

import (
	"fmt"
	"sort"

	"github.com/zintix-labs/gachalab/spec"
	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// ** 結構宣告 **
// ============================================================

// BatchReport 同一組參數、多個獨立種子的蒙地卡羅彙整
type BatchReport struct {
	Runs       int             `json:"runs"       yaml:"runs"`
	Completed  PointStat       `json:"completed"  yaml:"completed"` // 完成比例
	Exhausted  PointStat       `json:"exhausted"  yaml:"exhausted"` // 觸頂比例
	Cancelled  int             `json:"cancelled"  yaml:"cancelled"`
	Draws      DistStat        `json:"draws"      yaml:"draws"`
	TotalCost  DistStat        `json:"totalCost"  yaml:"totalCost"`
	Converted  DistStat        `json:"converted"  yaml:"converted"`
	Categories []CategoryBatch `json:"categories" yaml:"categories"`

	draws []float64
}

// PointStat 點估計 回傳 估計值 以及信賴區間
type PointStat struct {
	Hat float64 `json:"hat" yaml:"hat"`
	CI  CI      `json:"ci"  yaml:"ci"`
}

// DistStat 一個數值在所有模擬間的分布；分位數附 order statistic 信賴區間
type DistStat struct {
	Mean   float64   `json:"mean"   yaml:"mean"`
	Min    float64   `json:"min"    yaml:"min"`
	Max    float64   `json:"max"    yaml:"max"`
	Median PointStat `json:"median" yaml:"median"`
	P10    PointStat `json:"p10"    yaml:"p10"`
	P90    PointStat `json:"p90"    yaml:"p90"`
}

// CategoryBatch 單一分類的平均取得數與平均溢出數
type CategoryBatch struct {
	Name         string  `json:"name"         yaml:"name"`
	MeanObtained float64 `json:"meanObtained" yaml:"meanObtained"`
	MeanSurplus  float64 `json:"meanSurplus"  yaml:"meanSurplus"`
	MeanReached  float64 `json:"meanReached"  yaml:"meanReached"` // 只計達標的模擬
}

// ============================================================
// ** 公開方法 **
// ============================================================

// EstimateBatch 彙整多次模擬。分類順序沿用第一筆結果。
func EstimateBatch(rs []*Result) *BatchReport {
	b := &BatchReport{Runs: len(rs)}
	if len(rs) == 0 {
		return b
	}
	draws := make([]float64, 0, len(rs))
	costs := make([]float64, 0, len(rs))
	conv := make([]float64, 0, len(rs))
	completed, exhausted := 0, 0
	for _, r := range rs {
		r.Done()
		switch r.Status {
		case spec.StatusCompleted:
			completed++
		case spec.StatusExhausted:
			exhausted++
		case spec.StatusCancelled:
			b.Cancelled++
		}
		draws = append(draws, float64(r.Summary.Draws))
		costs = append(costs, r.Summary.TotalCost)
		conv = append(conv, r.Summary.ConvertedCost)
	}
	b.Completed.Hat, b.Completed.CI = proportionCICP(completed, len(rs), 0.95)
	b.Exhausted.Hat, b.Exhausted.CI = proportionCICP(exhausted, len(rs), 0.95)
	b.Draws = distStat(draws)
	b.TotalCost = distStat(costs)
	b.Converted = distStat(conv)
	b.Categories = categoryBatch(rs)
	b.draws = draws
	return b
}

// ProbWithin 估計 P(抽數 <= draws) 與其信賴區間，用來回答「預算 N 抽夠不夠」。
func (b *BatchReport) ProbWithin(draws int) PointStat {
	hat, ci := percentileCIForValue(b.draws, float64(draws), 0.95)
	return PointStat{Hat: hat, CI: ci}
}

func distStat(data []float64) DistStat {
	d := DistStat{}
	if len(data) == 0 {
		return d
	}
	d.Min, d.Max = data[0], data[0]
	sum := 0.0
	for _, v := range data {
		sum += v
		d.Min = min(d.Min, v)
		d.Max = max(d.Max, v)
	}
	d.Mean = sum / float64(len(data))
	d.Median = quantileStat(data, 0.5)
	d.P10 = quantileStat(data, 0.1)
	d.P90 = quantileStat(data, 0.9)
	return d
}

func quantileStat(data []float64, q float64) PointStat {
	lo, hi := quantileCI(data, q, 0.95)
	return PointStat{Hat: quantilePoint(data, q), CI: CI{Lo: lo, Hi: hi}}
}

func categoryBatch(rs []*Result) []CategoryBatch {
	first := rs[0]
	out := make([]CategoryBatch, len(first.Categories))
	reachedN := make([]int, len(out))
	for i, c := range first.Categories {
		out[i].Name = c.Name
	}
	for _, r := range rs {
		for i := range out {
			c, ok := r.Category(out[i].Name)
			if !ok {
				continue
			}
			out[i].MeanObtained += float64(c.Obtained)
			out[i].MeanSurplus += float64(c.Surplus)
			if c.ReachedAt > 0 {
				out[i].MeanReached += float64(c.ReachedAt)
				reachedN[i]++
			}
		}
	}
	n := float64(len(rs))
	for i := range out {
		out[i].MeanObtained /= n
		out[i].MeanSurplus /= n
		if reachedN[i] > 0 {
			out[i].MeanReached /= float64(reachedN[i])
		}
	}
	return out
}

// ============================================================
// ** 內部統計函數 **
// ============================================================

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	// Beta PPF 映射，處理邊界
	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// 問題：給定樣本 data 與門檻 x0，估計 p = P(X ≤ x0) 的點估計與 CI 區間
// 回傳 (pHat, CI)
func percentileCIForValue(data []float64, x0 float64, confidence float64) (pHat float64, ci CI) {
	n := len(data)
	if n == 0 {
		return 0, CI{Lo: 0, Hi: 0}
	}
	// k = 數到 <= x0 的個數
	k := 0
	for _, v := range data {
		if v <= x0 {
			k++
		}
	}
	return proportionCICP(k, n, confidence)
}

// 想估「第 q 分位」的上下界。做法：把 order statistic 的秩視為二項→Beta 反推 p 範圍，再把 p 轉回樣本索引。
// 回傳 (loValue, hiValue)
func quantileCI(data []float64, q, confidence float64) (float64, float64) {
	n := len(data)
	if n == 0 {
		return 0, 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)
	if n < 2 {
		return cp[0], cp[0]
	}

	alpha := 1 - confidence
	k := int(q * float64(n))
	if k < 1 {
		k = 1
	} else if k > n-1 {
		k = n - 1
	}

	// 以 CP 思想反推 p 範圍
	bLo := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
	bHi := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
	pLo := bLo.Quantile(alpha / 2)
	pHi := bHi.Quantile(1 - alpha/2)

	li := int(pLo * float64(n))
	ui := int(pHi * float64(n))
	if ui > 0 {
		ui -= 1
	}
	if li < 0 {
		li = 0
	}
	if li > n-1 {
		li = n - 1
	}
	if ui < 0 {
		ui = 0
	}
	if ui > n-1 {
		ui = n - 1
	}
	return cp[li], cp[ui]
}

// quantilePoint returns the empirical quantile point estimate at q.
func quantilePoint(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)
	// 最近秩法
	idx := int(q * float64(n))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return cp[idx]
}

// ============================================================
// ** 輸出函數 **
// ============================================================

func (b *BatchReport) Out() {
	fmt.Println("=== Outcome ===")
	outKeys := []string{"Runs", "Completed", "Exhausted", "Cancelled"}
	outMsg := map[string]string{
		"Runs":      fmt.Sprintf("%d", b.Runs),
		"Completed": fmtHatCIpct01(b.Completed.Hat, b.Completed.CI),
		"Exhausted": fmtHatCIpct01(b.Exhausted.Hat, b.Exhausted.CI),
		"Cancelled": fmt.Sprintf("%d", b.Cancelled),
	}
	printTable("Outcome", outKeys, outMsg)

	fmt.Println("\n=== Cost per run ===")
	costKeys := []string{"Draws", "Total Cost", "Converted Cost"}
	costMsg := map[string]string{
		"Draws":          fmtDistStat(b.Draws),
		"Total Cost":     fmtDistStat(b.TotalCost),
		"Converted Cost": fmtDistStat(b.Converted),
	}
	printTable("Cost per run", costKeys, costMsg)

	fmt.Println("\n=== Categories ===")
	for _, c := range b.Categories {
		fmt.Printf("%-12s : obtained %.2f | surplus %.2f | reached at %.1f\n", c.Name, c.MeanObtained, c.MeanSurplus, c.MeanReached)
	}
}

func printTable(title string, keys []string, msg map[string]string) {
	fmt.Println(title)
	maxKeyLen := 0
	for _, k := range keys {
		if len(k) > maxKeyLen {
			maxKeyLen = len(k)
		}
	}
	for _, k := range keys {
		fmt.Printf("  %-*s : %s\n", maxKeyLen, k, msg[k])
	}
}

func fmtPct01(x float64) string {
	return fmt.Sprintf("%.2f%%", x*100)
}

func fmtHatCIpct01(hat float64, ci CI) string {
	return fmt.Sprintf("%s [%s, %s]", fmtPct01(hat), fmtPct01(ci.Lo), fmtPct01(ci.Hi))
}

func fmtDistStat(d DistStat) string {
	return fmt.Sprintf("mean %.2f | median %.2f [%.2f, %.2f] | p90 %.2f [%.2f, %.2f] | max %.2f",
		d.Mean, d.Median.Hat, d.Median.CI.Lo, d.Median.CI.Hi, d.P90.Hat, d.P90.CI.Lo, d.P90.CI.Hi, d.Max)
}
