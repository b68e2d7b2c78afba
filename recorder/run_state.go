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

// Package recorder 保存單次模擬的可變狀態。
//
// RunState 只屬於一個迴圈，不做任何同步；並行的模擬各自持有自己的 RunState。
package recorder

import (
	"fmt"

	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// RunState 模擬紀錄員
//
// 分類以索引存取，順序同 spec.Params.Categories()：先權重宣告順序，再補只出現在目標的分類。
// 因此抽樣器回傳的索引可以直接拿來 Record。
type RunState struct {
	params      *spec.Params
	names       []string
	targets     []int
	weights     []float64
	obtained    []int
	counted     []int
	surplus     []int
	reachedAt   []int
	draws       int
	keepHistory bool
	history     []spec.DrawRecord
	series      []stats.ProgressPoint
	log         []string
}

func NewRunState(p *spec.Params, keepHistory bool) *RunState {
	names := p.Categories()
	n := len(names)
	s := &RunState{
		params:      p,
		names:       names,
		targets:     make([]int, n),
		weights:     make([]float64, n),
		obtained:    make([]int, n),
		counted:     make([]int, n),
		surplus:     make([]int, n),
		reachedAt:   make([]int, n),
		keepHistory: keepHistory,
	}
	for i, name := range names {
		s.targets[i], _ = p.TargetOf(name)
		s.weights[i], _ = p.WeightOf(name)
	}
	return s
}

// NextDraw 開始新的一抽並回傳其序號（從 1 起算）
func (s *RunState) NextDraw() int {
	s.draws++
	return s.draws
}

// Record 記錄本抽取得的一個物品。
//
// 回傳 counted：是否計入目標（否則計為 surplus）；reached：這個物品是否剛好讓該分類達標。
func (s *RunState) Record(i int) (counted bool, reached bool) {
	s.obtained[i]++
	if s.counted[i] < s.targets[i] {
		s.counted[i]++
		counted = true
		if s.counted[i] == s.targets[i] {
			s.reachedAt[i] = s.draws
			reached = true
		}
	} else {
		s.surplus[i]++
	}
	if s.keepHistory {
		s.history = append(s.history, spec.DrawRecord{Draw: s.draws, Category: s.names[i], Counted: counted})
	}
	return counted, reached
}

// Completed 所有目標分類都已達標
func (s *RunState) Completed() bool {
	for i, t := range s.targets {
		if s.counted[i] < t {
			return false
		}
	}
	return true
}

// Progress 整體進度 0~100：目標 > 0 的分類完成比例平均（各自夾到 100%）。
// 沒有任何正目標時視為 100。
func (s *RunState) Progress() float64 {
	sum, n := 0.0, 0
	for i, t := range s.targets {
		if t <= 0 {
			continue
		}
		sum += stats.Ratio(s.counted[i], t)
		n++
	}
	if n == 0 {
		return 100
	}
	return 100 * sum / float64(n)
}

// CategoryProgress 各分類進度 0~100，順序同 Names()
func (s *RunState) CategoryProgress() []float64 {
	out := make([]float64, len(s.names))
	for i, t := range s.targets {
		out[i] = 100 * stats.Ratio(s.counted[i], t)
	}
	return out
}

// Snapshot 保存一筆圖表用快照；同一抽重複呼叫只保留一筆。
func (s *RunState) Snapshot() stats.ProgressPoint {
	if n := len(s.series); n > 0 && s.series[n-1].Draw == s.draws {
		return s.series[n-1]
	}
	pt := stats.ProgressPoint{
		Draw:     s.draws,
		Progress: s.CategoryProgress(),
		Overall:  s.Progress(),
		Cost:     float64(s.draws) * s.params.CostPerDraw,
	}
	s.series = append(s.series, pt)
	return pt
}

// Logf 追加一行里程碑紀錄
func (s *RunState) Logf(format string, a ...any) {
	s.log = append(s.log, fmt.Sprintf(format, a...))
}

func (s *RunState) Draws() int           { return s.draws }
func (s *RunState) Names() []string      { return s.names }
func (s *RunState) Obtained(i int) int   { return s.obtained[i] }
func (s *RunState) Target(i int) int     { return s.targets[i] }
func (s *RunState) Weight(i int) float64 { return s.weights[i] }

// Done 把狀態交給彙整器，之後不應再使用這個 RunState。
func (s *RunState) Done(status spec.Status, seed int64) *stats.Result {
	cats := make([]stats.CategoryStat, len(s.names))
	for i, name := range s.names {
		cats[i] = stats.CategoryStat{
			Name:      name,
			Target:    s.targets[i],
			Weight:    s.weights[i],
			Obtained:  s.obtained[i],
			Counted:   s.counted[i],
			Surplus:   s.surplus[i],
			ReachedAt: s.reachedAt[i],
		}
	}
	r := &stats.Result{
		Status: status,
		Seed:   seed,
		Summary: &stats.Summary{
			Draws:          s.draws,
			DrawSize:       s.params.DrawSize,
			CostPerDraw:    s.params.CostPerDraw,
			ConversionRate: s.params.ConversionRate,
		},
		Categories: cats,
		Series:     s.series,
		History:    s.history,
		Log:        s.log,
	}
	r.Done()
	return r
}
