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

// Package engine 是抽卡迴圈：抽取、累計、檢查完成、檢查取消、定期回報，直到完成或觸頂。
//
// 對外只依賴三件事：進度回呼、每抽輪詢一次的取消判斷、單一結果或錯誤。
// 同步呼叫、worker 訊息、輪詢 job 三種擺放方式都建立在這個合約上。
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/zintix-labs/gachalab/recorder"
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/sdk/sampler"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// Progress 一次進度回報
type Progress struct {
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
	Draw       int     `json:"draw"`
}

// ProgressFunc 在迴圈自己的 goroutine 中同步呼叫；panic 會被攔下並記錄，不影響模擬。
type ProgressFunc func(Progress)

// CancelFunc 每抽結束後輪詢一次，回傳 true 即停止並回傳部分結果。
type CancelFunc func() bool

// ChannelProgress 把 channel 轉成不阻塞的 ProgressFunc，channel 滿時丟棄該次回報。
func ChannelProgress(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}

// Engine 無狀態，可被多個 goroutine 同時使用；每次 Run 都有自己的 RunState。
type Engine struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{cfg: cfg.Valid(), log: log}
}

func (e *Engine) Config() Config { return e.cfg }

// RunContext 與 Run 相同，另外把 ctx 取消併入取消判斷。
func (e *Engine) RunContext(ctx context.Context, p *spec.Params, rng core.PRNG, onProgress ProgressFunc, isCancelled CancelFunc) (*stats.Result, error) {
	return e.Run(p, rng, onProgress, func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
		}
		return isCancelled != nil && isCancelled()
	})
}

// Run 執行一次模擬。
//
// 唯一的錯誤是參數無效（包裝 spec.ErrInvalidDistribution），此時不會進行任何抽取。
// 取消與觸頂都是正常結束，由 Result.Status 區分。
func (e *Engine) Run(p *spec.Params, rng core.PRNG, onProgress ProgressFunc, isCancelled CancelFunc) (*stats.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pk, err := sampler.Build(e.cfg.Sampler, p.Weights)
	if err != nil {
		return nil, err
	}
	c := core.New(rng)
	st := recorder.NewRunState(p, e.cfg.KeepHistory)
	e.logStart(st, p)
	st.Snapshot()

	rarest := rarestIndex(p.Weights)
	perDraw := make([]int, len(st.Names()))
	status := spec.StatusExhausted
	if st.Completed() {
		status = spec.StatusCompleted
	}

	for status != spec.StatusCompleted && st.Draws() < e.cfg.MaxDraws {
		draw := st.NextDraw()
		clear(perDraw)
		for range p.DrawSize {
			i := pk.Pick(c)
			perDraw[i]++
			if _, reached := st.Record(i); reached {
				st.Logf("%s target (%d) reached at draw %d", st.Names()[i], st.Target(i), draw)
			}
		}
		if draw%e.cfg.LogEvery == 0 || (rarest >= 0 && perDraw[rarest] > 0) {
			st.Logf("draw #%d: %s", draw, fmtCounts(st.Names(), perDraw))
		}

		if st.Completed() {
			status = spec.StatusCompleted
			break
		}
		if e.cancelled(isCancelled, draw) {
			status = spec.StatusCancelled
			st.Logf("cancelled by caller at draw %d", draw)
			break
		}
		if draw%e.cfg.ReportEvery == 0 {
			pt := st.Snapshot()
			e.report(onProgress, Progress{
				Percentage: capped(pt.Overall),
				Status:     fmt.Sprintf("%d draws done", draw),
				Draw:       draw,
			})
		}
	}

	if status == spec.StatusExhausted {
		st.Logf("warning: reached the draw ceiling (%d) before all targets were met", e.cfg.MaxDraws)
		e.log.Warn("engine: draw ceiling reached",
			slog.Int("max_draws", e.cfg.MaxDraws),
			slog.Float64("progress", st.Progress()),
		)
	}
	final := st.Snapshot()
	if status == spec.StatusCompleted {
		e.report(onProgress, Progress{Percentage: 100, Status: status.String(), Draw: st.Draws()})
	} else {
		e.report(onProgress, Progress{Percentage: capped(final.Overall), Status: status.String(), Draw: st.Draws()})
	}
	st.Logf("finished: %s after %d draws, cost %.2f", status, st.Draws(), float64(st.Draws())*p.CostPerDraw)

	res := st.Done(status, 0)
	e.log.Debug("engine: run finished",
		slog.String("status", status.String()),
		slog.Int("draws", res.Summary.Draws),
		slog.Float64("total_cost", res.Summary.TotalCost),
	)
	return res, nil
}

// ============================================================
// ** 內部方法 **
// ============================================================

// report 呼叫進度回呼並攔下 panic：回報失敗不是模擬失敗。
func (e *Engine) report(fn ProgressFunc, pg Progress) {
	if fn == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			e.log.Warn("engine: progress callback panicked",
				slog.Any("panic", v),
				slog.Int("draw", pg.Draw),
			)
		}
	}()
	fn(pg)
}

// cancelled 取消判斷 panic 時視為未取消。
func (e *Engine) cancelled(fn CancelFunc, draw int) (stop bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if v := recover(); v != nil {
			e.log.Warn("engine: cancel predicate panicked",
				slog.Any("panic", v),
				slog.Int("draw", draw),
			)
			stop = false
		}
	}()
	return fn()
}

func (e *Engine) logStart(st *recorder.RunState, p *spec.Params) {
	targets := make([]string, 0, len(p.Targets))
	for _, t := range p.Targets {
		targets = append(targets, fmt.Sprintf("%s %d", t.Name, t.Count))
	}
	st.Logf("simulation started: targets %s, %d items per draw", strings.Join(targets, ", "), p.DrawSize)

	total := p.TotalWeight()
	weights := make([]string, 0, len(p.Weights))
	for _, w := range p.Weights {
		weights = append(weights, fmt.Sprintf("%s %.2f%%", w.Name, 100*w.Value/total))
	}
	st.Logf("weights: %s", strings.Join(weights, ", "))
	for _, name := range p.ZeroWeightTargets() {
		st.Logf("warning: %s has weight 0 and can never be obtained", name)
	}
}

// rarestIndex 權重最小的正權重分類；抽到它時一定寫一行紀錄。
func rarestIndex(ws []spec.Weight) int {
	idx := -1
	for i, w := range ws {
		if w.Value > 0 && (idx < 0 || w.Value < ws[idx].Value) {
			idx = i
		}
	}
	return idx
}

func fmtCounts(names []string, counts []int) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %d", n, counts[i])
	}
	return strings.Join(parts, ", ")
}

func capped(pct float64) float64 {
	return math.Round(min(ProgressCap, pct))
}
