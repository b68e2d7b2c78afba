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

package gachalab

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// Simulator 對同一組參數跑多次獨立模擬（蒙地卡羅），估計成本分布。
//
// 每次模擬的 seed 由 seedMaker 依序產生並綁定在模擬序號上，
// 因此結果與 worker 數量、排程順序無關：同一個 initSeed 得到同一份報表。
// 批次模擬不經過快取，也不保留逐物品紀錄。
type Simulator struct {
	params    *spec.Params
	eng       *engine.Engine
	pf        core.PRNGFactory
	initSeed  int64
	seedmaker *seedMaker
	log       *slog.Logger
}

func newSimulator(p *spec.Params, cfg engine.Config, pf core.PRNGFactory, seed int64, log *slog.Logger) *Simulator {
	cfg.KeepHistory = false
	return &Simulator{
		params:    p.Clone(),
		eng:       engine.New(cfg, nil),
		pf:        pf,
		initSeed:  seed,
		seedmaker: newSeedMaker(seed),
		log:       log,
	}
}

func (s *Simulator) Seed() int64 { return s.initSeed }

// Sim 單次模擬，回傳結果與用時
func (s *Simulator) Sim(showpb bool) (*stats.Result, time.Duration, error) {
	bar := pb.StartNew(1)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	seed := s.seedmaker.next()
	r, err := s.eng.Run(s.params, s.pf.New(seed), nil, nil)
	if err != nil {
		return nil, 0, err
	}
	r.Seed = seed
	bar.Increment()
	used := time.Since(bar.StartTime())
	bar.Finish()
	return r, used, nil
}

// Batch 以 mp 個 worker 平行跑 runs 次模擬，回傳彙整報表、逐次結果與用時。
func (s *Simulator) Batch(runs int, mp int, showpb bool) (*stats.BatchReport, []*stats.Result, time.Duration, error) {
	if runs < 1 {
		return nil, nil, 0, errs.NewWarn("runs must > 0")
	}
	if mp <= 0 {
		return nil, nil, 0, errs.NewWarn("workers must > 0")
	}
	mp = min(mp, runs)

	// 先依序產生 seed，讓第 i 次模擬永遠使用同一個 seed
	seeds := make([]int64, runs)
	for i := range seeds {
		seeds[i] = s.seedmaker.next()
	}
	results := make([]*stats.Result, runs)

	// 作一個緩衝 channel 讓 worker 依序領取模擬序號
	jobs := make(chan int, min(runs, 2048))

	wg := new(sync.WaitGroup)
	wg.Add(mp)
	bar := pb.StartNew(runs)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	for w := 0; w < mp; w++ {
		go s.sim(wg, jobs, seeds, results, bar)
	}
	for i := range runs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	used := time.Since(bar.StartTime())
	bar.Finish()

	for _, r := range results {
		if r == nil {
			return nil, nil, used, errs.NewFatal("batch: missing result")
		}
	}
	rep := stats.EstimateBatch(results)
	s.log.Info("gachalab: batch finished",
		slog.Int("runs", runs),
		slog.Int("workers", mp),
		slog.Duration("used", used),
		slog.Float64("completed", rep.Completed.Hat),
	)
	return rep, results, used, nil
}

func (s *Simulator) sim(wg *sync.WaitGroup, jobs <-chan int, seeds []int64, results []*stats.Result, bar *pb.ProgressBar) {
	defer wg.Done()
	for i := range jobs {
		// 參數已在建立時驗證，Run 不會回錯
		r, err := s.eng.Run(s.params, s.pf.New(seeds[i]), nil, nil)
		if err == nil {
			r.Seed = seeds[i]
			results[i] = r
		}
		bar.Increment()
	}
}

const mask63 = uint64(1<<63) - 1

type seedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// state 走全週期（不重複），再用可逆 mix63 打散
//
// 注意：此方法可能在併發環境下被多 goroutines 同時呼叫（例如 Lab.Simulate 與 Jobs）。
// 因此 state 的推進必須是原子的：
//   - 使用 CAS（Compare-And-Swap）迴圈確保每次呼叫都會取得唯一的下一個 state。
//   - 回傳值使用推進後的 state 經 mix63 打散後的結果。
func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()                                            // always masked
		next := (old*6364136223846793005 + 1442695040888963407) & mask63 // full-period LCG mod 2^63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next)) // 一定非負
		}
	}
}

// mix63：只用「可逆」的 bit 操作 + 乘奇數（mod 2^63）
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63 // 乘奇數 ⇒ mod 2^63 可逆
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
