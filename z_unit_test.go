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
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/zintix-labs/gachalab/cache"
	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/spec"
)

func scenario() *spec.Params {
	return &spec.Params{
		Targets: []spec.Target{{Name: "rare", Count: 2}, {Name: "epic", Count: 1}, {Name: "legendary", Count: 1}},
		Weights: []spec.Weight{
			{Name: "rare", Value: 80},
			{Name: "epic", Value: 15},
			{Name: "legendary", Value: 5},
		},
		DrawSize:       1,
		CostPerDraw:    160,
		ConversionRate: 0.0099,
	}
}

// unreachable 含一個權重 0 的目標，只能被取消或觸頂結束
func unreachable() *spec.Params {
	p := scenario()
	p.Weights[2].Value = 0
	return p
}

func newTestLab(t *testing.T, cfg Config, opts ...Option) *Lab {
	t.Helper()
	opts = append([]Option{WithSeed(20250101)}, opts...)
	lab, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return lab
}

func longRunning() Config {
	cfg := DefaultConfig()
	cfg.Engine.MaxDraws = math.MaxInt32
	cfg.Engine.KeepHistory = false
	return cfg
}

func TestLabCacheHitProgress(t *testing.T) {
	lab := newTestLab(t, DefaultConfig(), WithPerturber(nil))
	first, err := lab.SimulateWithSeed(scenario(), 1, nil, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Cached {
		t.Fatalf("first run must not be cached")
	}
	if lab.Cache().Len() != 1 {
		t.Fatalf("cache len = %d, want 1", lab.Cache().Len())
	}

	var got []engine.Progress
	second, err := lab.SimulateWithSeed(scenario(), 2, func(pg engine.Progress) { got = append(got, pg) }, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second run should be a cache hit")
	}
	want := []float64{25, 50, 75, 100}
	if len(got) != len(want) {
		t.Fatalf("progress steps = %d, want %d", len(got), len(want))
	}
	for i, pg := range got {
		if pg.Percentage != want[i] {
			t.Fatalf("step %d = %v, want %v", i, pg.Percentage, want[i])
		}
	}
	if got[3].Status != "completed" {
		t.Fatalf("last status = %q", got[3].Status)
	}
	if second.Summary.TotalCost != first.Summary.TotalCost || second.Seed != first.Seed {
		t.Fatalf("unperturbed hit differs: %v/%d vs %v/%d",
			second.Summary.TotalCost, second.Seed, first.Summary.TotalCost, first.Seed)
	}

	// 修改回傳值不影響快取內容
	second.Summary.Draws = -1
	third, _ := lab.SimulateWithSeed(scenario(), 3, nil, nil)
	if third.Summary.Draws != first.Summary.Draws {
		t.Fatalf("cache entry mutated through returned result")
	}
}

func TestLabPerturbedHit(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	first, err := lab.SimulateWithSeed(scenario(), 1, nil, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	hit, err := lab.SimulateWithSeed(scenario(), 99, nil, nil)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if !hit.Cached {
		t.Fatalf("expected cache hit")
	}
	ratio := hit.Summary.TotalCost / first.Summary.TotalCost
	if ratio < 0.98-1e-4 || ratio > 1.02+1e-4 {
		t.Fatalf("perturbed cost ratio %v outside ±2%%", ratio)
	}
	if hit.Summary.Draws != first.Summary.Draws {
		t.Fatalf("perturbation must not change draw count")
	}
}

func TestLabInvalidDistribution(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	p := scenario()
	for i := range p.Weights {
		p.Weights[i].Value = 0
	}
	_, err := lab.Simulate(p, nil, nil)
	if !errors.Is(err, spec.ErrInvalidDistribution) {
		t.Fatalf("err = %v, want ErrInvalidDistribution", err)
	}
	if lab.Cache().Len() != 0 {
		t.Fatalf("invalid params must not touch the cache")
	}
}

func TestLabCancelledNotCached(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	res, err := lab.Simulate(scenario(), nil, func() bool { return true })
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Status != spec.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", res.Status)
	}
	if lab.Cache().Len() != 0 {
		t.Fatalf("cancelled result was cached")
	}
}

func TestLabExhaustedCached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxDraws = 25
	lab := newTestLab(t, cfg)
	res, err := lab.Simulate(unreachable(), nil, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Status != spec.StatusExhausted || res.Summary.Draws != 25 {
		t.Fatalf("got %v after %d draws", res.Status, res.Summary.Draws)
	}
	if lab.Cache().Len() != 1 {
		t.Fatalf("exhausted result should be cached")
	}

	var got []engine.Progress
	hit, err := lab.Simulate(unreachable(), func(pg engine.Progress) { got = append(got, pg) }, nil)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if !hit.Cached || hit.Status != spec.StatusExhausted {
		t.Fatalf("hit = %v cached=%t", hit.Status, hit.Cached)
	}
	if len(got) != 4 {
		t.Fatalf("progress steps = %d, want 4", len(got))
	}
	last := got[len(got)-1]
	if last.Percentage >= 100 || last.Percentage > engine.ProgressCap || last.Status != "exhausted" {
		t.Fatalf("last step = %+v, want capped exhausted", last)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Percentage < got[i-1].Percentage {
			t.Fatalf("progress went backwards: %+v", got)
		}
	}
}

func TestLabSharedCache(t *testing.T) {
	shared := cache.New(2)
	a := newTestLab(t, DefaultConfig(), WithCache(shared))
	b := newTestLab(t, DefaultConfig(), WithCache(shared))
	if _, err := a.Simulate(scenario(), nil, nil); err != nil {
		t.Fatalf("a: %v", err)
	}
	res, err := b.Simulate(scenario(), nil, nil)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if !res.Cached {
		t.Fatalf("lab b should hit the shared cache")
	}
}

func TestLabSharedCacheSeparatesCeilings(t *testing.T) {
	shared := cache.New(4)
	short := DefaultConfig()
	short.Engine.MaxDraws = 3
	a := newTestLab(t, short, WithCache(shared))
	b := newTestLab(t, DefaultConfig(), WithCache(shared))

	ra, err := a.Simulate(unreachable(), nil, nil)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	if ra.Status != spec.StatusExhausted || ra.Summary.Draws != 3 {
		t.Fatalf("a: %v after %d draws", ra.Status, ra.Summary.Draws)
	}
	rb, err := b.Simulate(unreachable(), nil, nil)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if rb.Cached || rb.Summary.Draws != engine.DefaultMaxDraws {
		t.Fatalf("b reused a's result: cached=%t draws=%d", rb.Cached, rb.Summary.Draws)
	}
	if shared.Len() != 2 {
		t.Fatalf("shared cache len = %d, want 2", shared.Len())
	}
}

func TestSeedMakerDeterministic(t *testing.T) {
	a, b := newSeedMaker(42), newSeedMaker(42)
	seen := make(map[int64]bool)
	for range 1000 {
		x, y := a.next(), b.next()
		if x != y {
			t.Fatalf("seed sequences diverged")
		}
		if x < 0 {
			t.Fatalf("negative seed %d", x)
		}
		if seen[x] {
			t.Fatalf("duplicate seed %d", x)
		}
		seen[x] = true
	}
}

func TestBatchDeterministicAcrossWorkers(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	run := func(mp int) []int {
		s, err := lab.NewSimulatorWithSeed(spec.DefaultParams(), 7)
		if err != nil {
			t.Fatalf("simulator: %v", err)
		}
		rep, results, _, err := s.Batch(40, mp, false)
		if err != nil {
			t.Fatalf("batch: %v", err)
		}
		if rep.Runs != 40 {
			t.Fatalf("runs = %d", rep.Runs)
		}
		out := make([]int, len(results))
		for i, r := range results {
			if r.History != nil {
				t.Fatalf("batch runs should not keep history")
			}
			out[i] = r.Summary.Draws
		}
		return out
	}
	one, four := run(1), run(4)
	if !slices.Equal(one, four) {
		t.Fatalf("batch differs by worker count:\n%v\n%v", one, four)
	}
}

func TestBatchRejectsBadArgs(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	s, err := lab.NewSimulator(scenario())
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	if _, _, _, err := s.Batch(0, 1, false); err == nil {
		t.Fatalf("runs=0 should fail")
	}
	if _, _, _, err := s.Batch(1, 0, false); err == nil {
		t.Fatalf("mp=0 should fail")
	}
	if _, err := lab.NewSimulator(&spec.Params{}); !errors.Is(err, spec.ErrInvalidDistribution) {
		t.Fatalf("invalid params accepted: %v", err)
	}
}

func TestJobsLifecycle(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	js := NewJobs(lab, time.Hour)
	defer js.Close()

	id, err := js.Start(scenario(), 5)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := js.Wait(ctx, id, time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if v.State != JobCompleted || v.Result == nil {
		t.Fatalf("state = %s, result nil = %v", v.State, v.Result == nil)
	}
	if v.Progress != 100 {
		t.Fatalf("progress = %v, want 100", v.Progress)
	}
	if v.Seed != 5 || v.Result.Seed != 5 {
		t.Fatalf("seed not propagated: %d/%d", v.Seed, v.Result.Seed)
	}

	if r, err := js.Result(id); err != nil || r.Summary.Draws != v.Result.Summary.Draws {
		t.Fatalf("result: %v", err)
	}

	if n := js.Sweep(time.Now()); n != 0 {
		t.Fatalf("fresh job swept")
	}
	if n := js.Sweep(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, err := js.Status(id); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("status after sweep: %v", err)
	}
}

func TestJobsCancel(t *testing.T) {
	lab := newTestLab(t, longRunning())
	js := NewJobs(lab, time.Hour)
	defer js.Close()

	id, err := js.Start(unreachable(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := js.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := js.Wait(ctx, id, time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if v.State != JobCancelled || v.Result == nil || v.Result.Status != spec.StatusCancelled {
		t.Fatalf("state = %s", v.State)
	}
	if v.Progress > engine.ProgressCap {
		t.Fatalf("cancelled job reports %v%%", v.Progress)
	}
}

func TestJobsErrors(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	js := NewJobs(lab, time.Hour)
	if _, err := js.Start(&spec.Params{}, 0); !errors.Is(err, spec.ErrInvalidDistribution) {
		t.Fatalf("start invalid: %v", err)
	}
	if js.Len() != 0 {
		t.Fatalf("invalid job registered")
	}
	if _, err := js.Status("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("status: %v", err)
	}
	if _, err := js.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cancel: %v", err)
	}
	js.Close()
	if _, err := js.Start(scenario(), 0); err == nil {
		t.Fatalf("start after close should fail")
	}
}

func TestJobsStartRacingClose(t *testing.T) {
	lab := newTestLab(t, longRunning())
	js := NewJobs(lab, time.Hour)

	var (
		mu       sync.Mutex
		accepted []string
		wg       sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				id, err := js.Start(scenario(), 0)
				if err != nil {
					return
				}
				mu.Lock()
				accepted = append(accepted, id)
				mu.Unlock()
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	js.Close()
	wg.Wait()

	// Close 回傳後不能還有在跑的 job
	mu.Lock()
	defer mu.Unlock()
	for _, id := range accepted {
		v, err := js.Status(id)
		if err != nil {
			t.Fatalf("status %s: %v", id, err)
		}
		if !v.State.Finished() {
			t.Fatalf("job %s still %s after Close", id, v.State)
		}
	}
	if _, err := js.Start(scenario(), 0); err == nil {
		t.Fatalf("start after close should fail")
	}
}

// collect 讀取訊息直到該請求的終止訊息
func collect(t *testing.T, w *Worker, id string) (progress []float64, last Message) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-w.Messages():
			if !ok {
				t.Fatalf("outbox closed before %s finished", id)
			}
			if m.ID != id {
				continue
			}
			switch m.Type {
			case MsgProgress:
				progress = append(progress, m.Progress.Percentage)
			case MsgComplete, MsgError:
				return progress, m
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", id)
		}
	}
}

func TestWorkerMessages(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	w := NewWorker(lab, 1, 64)
	w.Start(context.Background())
	defer w.Close()

	if m := <-w.Messages(); m.Type != MsgReady {
		t.Fatalf("first message = %s, want ready", m.Type)
	}
	id, err := w.Submit(context.Background(), Request{Params: scenario(), Seed: 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, last := collect(t, w, id)
	if last.Type != MsgComplete || last.Result == nil {
		t.Fatalf("last = %+v", last)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}
	if m := w.Metrics(); m.Processed != 1 || m.Workers != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestWorkerInvalidAndCancel(t *testing.T) {
	lab := newTestLab(t, longRunning())
	w := NewWorker(lab, 2, 16)
	w.Start(context.Background())
	defer w.Close()

	id, err := w.Submit(context.Background(), Request{ID: "bad", Params: &spec.Params{}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, last := collect(t, w, id)
	if last.Type != MsgError || !last.Invalid {
		t.Fatalf("invalid params: %+v", last)
	}

	id, err = w.Submit(context.Background(), Request{Params: unreachable(), Seed: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !w.Cancel(id) {
		t.Fatalf("cancel unknown id %s", id)
	}
	_, last = collect(t, w, id)
	if last.Type != MsgComplete || last.Result.Status != spec.StatusCancelled {
		t.Fatalf("cancelled request: %+v", last)
	}
	if w.Cancel("unknown") {
		t.Fatalf("cancel of unknown id reported true")
	}
}

func TestWorkerClose(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(lab, 1, 4)
	w.Start(ctx)
	cancel()
	w.Close()
	if !w.Closed() {
		t.Fatalf("worker not closed")
	}
	if _, err := w.Submit(context.Background(), Request{Params: scenario()}); err == nil {
		t.Fatalf("submit after close should fail")
	}
	for range w.Messages() {
	}
}

func TestRuntime(t *testing.T) {
	lab := newTestLab(t, DefaultConfig())
	rt := lab.BuildRuntime()

	res, err := rt.Simulate(context.Background(), scenario(), 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Seed == 0 {
		t.Fatalf("runtime should assign a seed")
	}
	w, err := rt.NewWorker(context.Background(), 8)
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	m := rt.Metrics()
	if m.CacheLen != 1 || len(m.Workers) != 1 || m.Closed {
		t.Fatalf("metrics = %+v", m)
	}
	rt.ReleaseWorker(w)
	if len(rt.Metrics().Workers) != 0 {
		t.Fatalf("released worker still tracked")
	}

	rt.CloseWithReason("shutdown")
	rt.Close()
	if !rt.Closed() || rt.ClosedReason() != "shutdown" {
		t.Fatalf("closed = %v reason = %q", rt.Closed(), rt.ClosedReason())
	}
	if _, err := rt.Simulate(context.Background(), scenario(), 1, nil); err == nil {
		t.Fatalf("simulate after close should fail")
	}
	if _, err := rt.NewWorker(context.Background(), 1); err == nil {
		t.Fatalf("worker after close should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt2 := lab.BuildRuntime()
	defer rt2.Close()
	if _, err := rt2.Simulate(ctx, scenario(), 1, nil); err == nil {
		t.Fatalf("cancelled ctx should fail fast")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte("engine:\n  max_draws: 500\ncache_size: 8\njob_ttl: 30m\nperturb: false\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxDraws != 500 || cfg.CacheSize != 8 || cfg.JobTTL != 30*time.Minute || cfg.Perturb {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Engine.ReportEvery != engine.DefaultConfig().ReportEvery || cfg.Workers != 1 {
		t.Fatalf("defaults not kept: %+v", cfg)
	}

	empty, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if empty.CacheSize != cache.DefaultSize {
		t.Fatalf("empty config should equal defaults, got %+v", empty)
	}

	if _, err := LoadConfig([]byte("cache_sise: 8\n")); err == nil {
		t.Fatalf("unknown field should fail")
	}
}
