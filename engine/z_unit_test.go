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

package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/sdk/sampler"
	"github.com/zintix-labs/gachalab/spec"
)

func scenarioParams() *spec.Params {
	return &spec.Params{
		Targets: []spec.Target{{Name: "rare", Count: 2}, {Name: "epic", Count: 1}, {Name: "legendary", Count: 1}},
		Weights: []spec.Weight{{Name: "rare", Value: 80}, {Name: "epic", Value: 15}, {Name: "legendary", Value: 5}},
		DrawSize:       1,
		CostPerDraw:    160,
		ConversionRate: 0.0099,
	}
}

// rare, epic, rare, legendary
func scenarioRNG() core.PRNG {
	return core.NewReplay(0.1, 0.85, 0.1, 0.97)
}

func TestConcreteScenario(t *testing.T) {
	var last Progress
	res, err := New(DefaultConfig(), nil).Run(scenarioParams(), scenarioRNG(), func(p Progress) { last = p }, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != spec.StatusCompleted {
		t.Fatalf("status: want completed, got %s", res.Status)
	}
	if res.Summary.Draws != 4 {
		t.Fatalf("draws: want 4, got %d", res.Summary.Draws)
	}
	want := map[string]int{"rare": 2, "epic": 1, "legendary": 1}
	for name, n := range want {
		c, ok := res.Category(name)
		if !ok {
			t.Fatalf("category %s missing", name)
		}
		if c.Obtained != n || c.Surplus != 0 {
			t.Fatalf("%s: want obtained %d surplus 0, got %d / %d", name, n, c.Obtained, c.Surplus)
		}
	}
	if res.Summary.TotalCost != 640 {
		t.Fatalf("total cost: want 640, got %v", res.Summary.TotalCost)
	}
	if res.Summary.ConvertedCost != 6.336 {
		t.Fatalf("converted cost: want 6.336, got %v", res.Summary.ConvertedCost)
	}
	if res.Summary.TotalSurplus != 0 {
		t.Fatalf("total surplus: want 0, got %d", res.Summary.TotalSurplus)
	}
	seq := []string{"rare", "epic", "rare", "legendary"}
	if len(res.History) != len(seq) {
		t.Fatalf("history length: want %d, got %d", len(seq), len(res.History))
	}
	for i, rec := range res.History {
		if rec.Category != seq[i] || rec.Draw != i+1 || !rec.Counted {
			t.Fatalf("history[%d]: unexpected %+v", i, rec)
		}
	}
	if last.Percentage != 100 || last.Status != "completed" {
		t.Fatalf("final progress: want 100/completed, got %+v", last)
	}
	c, _ := res.Category("legendary")
	if c.ReachedAt != 4 || c.ExpectedPct != 5 {
		t.Fatalf("legendary stat: %+v", c)
	}
	if !strings.Contains(strings.Join(res.Log, "\n"), "legendary target (1) reached at draw 4") {
		t.Fatalf("milestone missing from log: %v", res.Log)
	}
}

// TestZeroWeightExhaustion 權重 0 的目標永遠無法達成，必定剛好在上限停下。
func TestZeroWeightExhaustion(t *testing.T) {
	p := &spec.Params{
		Targets:        []spec.Target{{Name: "rare", Count: 1}, {Name: "legendary", Count: 1}},
		Weights:        []spec.Weight{{Name: "rare", Value: 1}, {Name: "legendary", Value: 0}},
		DrawSize:       1,
		CostPerDraw:    1,
		ConversionRate: 1,
	}
	for _, kind := range []sampler.Kind{sampler.KindScan, sampler.KindAlias} {
		cfg := DefaultConfig()
		cfg.Sampler = kind
		res, err := New(cfg, nil).Run(p, core.Default().New(3), nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if res.Status != spec.StatusExhausted {
			t.Fatalf("%s: want exhausted, got %s", kind, res.Status)
		}
		if res.Summary.Draws != DefaultMaxDraws {
			t.Fatalf("%s: want %d draws, got %d", kind, DefaultMaxDraws, res.Summary.Draws)
		}
		if c, _ := res.Category("legendary"); c.Obtained != 0 {
			t.Fatalf("%s: zero-weight category obtained %d", kind, c.Obtained)
		}
	}
}

func TestConfigurableCeiling(t *testing.T) {
	p := scenarioParams()
	p.Targets[0].Count = 1 << 20
	cfg := DefaultConfig()
	cfg.MaxDraws = 37
	res, err := New(cfg, nil).Run(p, core.Default().New(1), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != spec.StatusExhausted || res.Summary.Draws != 37 {
		t.Fatalf("want exhausted at 37, got %s at %d", res.Status, res.Summary.Draws)
	}
}

// TestCancellationAtN 取消判斷第 N 次回傳 true 時，剛好停在第 N 抽。
func TestCancellationAtN(t *testing.T) {
	const n = 7
	p := scenarioParams()
	p.DrawSize = 3
	p.Targets[0].Count = 1 << 20
	calls := 0
	res, err := New(DefaultConfig(), nil).Run(p, core.Default().New(9), nil, func() bool {
		calls++
		return calls == n
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != spec.StatusCancelled {
		t.Fatalf("want cancelled, got %s", res.Status)
	}
	if res.Summary.Draws != n || calls != n {
		t.Fatalf("want %d draws and polls, got %d draws %d polls", n, res.Summary.Draws, calls)
	}
	if len(res.History) != n*p.DrawSize {
		t.Fatalf("history: want %d items, got %d", n*p.DrawSize, len(res.History))
	}
	for _, rec := range res.History {
		if rec.Draw > n {
			t.Fatalf("history contains draw %d beyond %d", rec.Draw, n)
		}
	}
}

func TestRunContextCancelled(t *testing.T) {
	p := scenarioParams()
	p.Targets[0].Count = 1 << 20
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(DefaultConfig(), nil).RunContext(ctx, p, core.Default().New(2), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != spec.StatusCancelled || res.Summary.Draws != 1 {
		t.Fatalf("want cancelled after 1 draw, got %s after %d", res.Status, res.Summary.Draws)
	}
}

// TestProgressCapped 進行中回報不超過 95，100 只在完成時出現一次。
func TestProgressCapped(t *testing.T) {
	p := scenarioParams()
	p.Targets = []spec.Target{{Name: "rare", Count: 200}, {Name: "epic", Count: 40}, {Name: "legendary", Count: 10}}
	var got []Progress
	res, err := New(DefaultConfig(), nil).Run(p, core.Default().New(5), func(pg Progress) { got = append(got, pg) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != spec.StatusCompleted {
		t.Fatalf("want completed, got %s", res.Status)
	}
	if len(got) < 2 {
		t.Fatalf("expected periodic progress, got %v", got)
	}
	for i, pg := range got[:len(got)-1] {
		if pg.Percentage > ProgressCap {
			t.Fatalf("progress %d above cap: %+v", i, pg)
		}
		if pg.Draw%DefaultReportEvery != 0 {
			t.Fatalf("progress %d off the reporting interval: %+v", i, pg)
		}
		if i > 0 && pg.Percentage < got[i-1].Percentage {
			t.Fatalf("progress went backwards at %d: %v -> %v", i, got[i-1].Percentage, pg.Percentage)
		}
	}
	if last := got[len(got)-1]; last.Percentage != 100 || last.Draw != res.Summary.Draws {
		t.Fatalf("final progress: %+v", last)
	}
}

func TestCallbackPanicIsolated(t *testing.T) {
	p := scenarioParams()
	p.Targets[0].Count = 50
	res, err := New(DefaultConfig(), nil).Run(p, core.Default().New(11),
		func(Progress) { panic("ui is gone") },
		func() bool { panic("predicate is broken") },
	)
	if err != nil {
		t.Fatalf("callback panic must not become an error: %v", err)
	}
	if res.Status != spec.StatusCompleted {
		t.Fatalf("want completed, got %s", res.Status)
	}
}

// TestMonotonicity 各分類的累計數與快照進度都不會下降。
func TestMonotonicity(t *testing.T) {
	p := spec.DefaultParams()
	res, err := New(DefaultConfig(), nil).Run(p, core.Default().New(42), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]int{}
	for _, rec := range res.History {
		seen[rec.Category]++
	}
	for _, c := range res.Categories {
		if seen[c.Name] != c.Obtained {
			t.Fatalf("%s: history has %d, obtained %d", c.Name, seen[c.Name], c.Obtained)
		}
		if c.Counted+c.Surplus != c.Obtained {
			t.Fatalf("%s: counted %d + surplus %d != obtained %d", c.Name, c.Counted, c.Surplus, c.Obtained)
		}
	}
	for i := 1; i < len(res.Series); i++ {
		prev, cur := res.Series[i-1], res.Series[i]
		if cur.Draw <= prev.Draw {
			t.Fatalf("series draw not increasing: %d -> %d", prev.Draw, cur.Draw)
		}
		for j := range cur.Progress {
			if cur.Progress[j] < prev.Progress[j] {
				t.Fatalf("category %d progress decreased at draw %d", j, cur.Draw)
			}
		}
	}
}

func TestInvalidDistribution(t *testing.T) {
	p := scenarioParams()
	p.Weights = []spec.Weight{{Name: "rare", Value: 0}, {Name: "epic", Value: 0}, {Name: "legendary", Value: 0}}
	calls := 0
	_, err := New(DefaultConfig(), nil).Run(p, core.Default().New(1), func(Progress) { calls++ }, nil)
	if !errors.Is(err, spec.ErrInvalidDistribution) {
		t.Fatalf("want ErrInvalidDistribution, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("no progress expected before validation passes, got %d", calls)
	}
}

func TestNothingToCollect(t *testing.T) {
	p := scenarioParams()
	for i := range p.Targets {
		p.Targets[i].Count = 0
	}
	res, err := New(DefaultConfig(), nil).Run(p, core.Default().New(1), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != spec.StatusCompleted || res.Summary.Draws != 0 || res.Summary.TotalCost != 0 {
		t.Fatalf("want completed with 0 draws, got %s %d", res.Status, res.Summary.Draws)
	}
}

func TestDeterministicSeed(t *testing.T) {
	e := New(DefaultConfig(), nil)
	a, _ := e.Run(spec.DefaultParams(), core.Default().New(77), nil, nil)
	b, _ := e.Run(spec.DefaultParams(), core.Default().New(77), nil, nil)
	if a.Summary.Draws != b.Summary.Draws || len(a.History) != len(b.History) {
		t.Fatalf("same seed diverged: %d vs %d", a.Summary.Draws, b.Summary.Draws)
	}
	for i := range a.History {
		if a.History[i] != b.History[i] {
			t.Fatalf("history diverged at %d", i)
		}
	}
}

func TestSurplusCounted(t *testing.T) {
	p := scenarioParams()
	// rare x3 -> 第三張 rare 為 surplus，再抽 epic, legendary 完成
	res, err := New(DefaultConfig(), nil).Run(p, core.NewReplay(0.1, 0.2, 0.3, 0.85, 0.97), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := res.Category("rare")
	if c.Obtained != 3 || c.Surplus != 1 || c.Counted != 2 {
		t.Fatalf("rare stat: %+v", c)
	}
	if res.History[2].Counted {
		t.Fatal("third rare must not count toward the target")
	}
	if res.Summary.Draws != 5 || math.Abs(res.Summary.TotalCost-800) > 1e-9 {
		t.Fatalf("draws %d cost %v", res.Summary.Draws, res.Summary.TotalCost)
	}
}

func TestChannelProgressDoesNotBlock(t *testing.T) {
	ch := make(chan Progress, 1)
	fn := ChannelProgress(ch)
	fn(Progress{Percentage: 10})
	fn(Progress{Percentage: 20}) // 滿了，直接丟棄
	if got := <-ch; got.Percentage != 10 {
		t.Fatalf("want first report, got %+v", got)
	}
}

func TestConfigValid(t *testing.T) {
	c := Config{Sampler: "weird"}.Valid()
	if c.MaxDraws != DefaultMaxDraws || c.ReportEvery != DefaultReportEvery || c.LogEvery != DefaultLogEvery || c.Sampler != sampler.KindScan {
		t.Fatalf("Valid did not normalise: %+v", c)
	}
}
