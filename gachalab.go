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

// Package gachalab 提供抽卡成本模擬的「組裝入口（assembler）」與三種執行擺放方式。
//
// Lab 把下列元件組裝在一起：
//  1. Engine：抽卡迴圈（engine 套件），每次模擬擁有自己的 RunState。
//  2. Cache：以參數指紋記住結果的 FIFO 快取；由 Lab 明確持有，不是全域單例。
//  3. PRNGFactory：亂數核心工廠，保證同一個 seed 得到同一組抽取序列。
//
// 控制流程：先查快取 → 未命中才跑迴圈 → 完成/觸頂的結果放回快取 → 回傳給呼叫端。
// 命中時同步送出 25/50/75/100 四個進度點（觸頂的結果不送 100），並（可選）套用 Perturber。
//
// 擺放方式：
//   - 同步：Lab.Simulate 在呼叫端的 goroutine 跑完。
//   - 輪詢：Jobs.Start / Status / Cancel，給無法保持連線的呼叫端。
//   - 訊息：Worker 以 channel 接收 Request、送出 progress / complete / error 訊息。
package gachalab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/zintix-labs/gachalab/cache"
	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
	"gopkg.in/yaml.v3"
)

// Config Lab 的設定
type Config struct {
	Engine    engine.Config `yaml:"engine"     json:"engine"`
	CacheSize int           `yaml:"cache_size" json:"cacheSize"`
	Perturb   bool          `yaml:"perturb"    json:"perturb"` // 命中快取時是否擾動
	JobTTL    time.Duration `yaml:"job_ttl"    json:"jobTTL"`  // 已結束 job 保留多久
	Workers   int           `yaml:"workers"    json:"workers"` // 每個 Worker 的 goroutine 數
}

func DefaultConfig() Config {
	return Config{
		Engine:    engine.DefaultConfig(),
		CacheSize: cache.DefaultSize,
		Perturb:   true,
		JobTTL:    time.Hour,
		Workers:   1,
	}
}

// Valid 回傳修正後的設定
func (c Config) Valid() Config {
	c.Engine = c.Engine.Valid()
	if c.CacheSize <= 0 {
		c.CacheSize = cache.DefaultSize
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// LoadConfig 以 DefaultConfig 為底，嚴格解析 YAML 覆蓋欄位；多寫或拼錯欄位直接報錯。
//
//	engine:
//	  max_draws: 20000
//	  sampler: alias
//	cache_size: 100
//	job_ttl: 30m
func LoadConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errs.Wrap(errs.NewWarn(err.Error()), "gachalab: config decode failed")
	}
	return cfg.Valid(), nil
}

// Option 調整 Lab 的組裝
type Option func(*Lab)

func WithLogger(log *slog.Logger) Option {
	return func(l *Lab) {
		if log != nil {
			l.log = log
		}
	}
}

// WithPRNG 替換亂數核心工廠（預設 PCG64）
func WithPRNG(pf core.PRNGFactory) Option {
	return func(l *Lab) {
		if pf != nil {
			l.pf = pf
		}
	}
}

// WithCache 共用外部建立的快取，例如多個 Lab 共用一份。
// 鍵包含各 Lab 的迴圈設定，只有設定相同的 Lab 才會互相命中。
func WithCache(c *cache.Cache) Option {
	return func(l *Lab) {
		if c != nil {
			l.cache = c
		}
	}
}

// WithPerturber 指定擾動參數；傳 nil 等同關閉擾動。
func WithPerturber(pt *cache.Perturber) Option {
	return func(l *Lab) { l.perturb = pt }
}

// WithSeed 固定 Lab 內部種子序列的起點，Simulate 產生的 seed 因此可重現。
func WithSeed(seed int64) Option {
	return func(l *Lab) { l.seeds = newSeedMaker(seed) }
}

type Lab struct {
	cfg     Config
	eng     *engine.Engine
	cache   *cache.Cache
	perturb *cache.Perturber
	pf      core.PRNGFactory
	seeds   *seedMaker
	log     *slog.Logger
	ns      string // 快取命名空間，由迴圈設定決定
}

// New 建立 Lab。
func New(cfg Config, opts ...Option) (*Lab, error) {
	cfg = cfg.Valid()
	l := &Lab{
		cfg: cfg,
		pf:  core.Default(),
		log: slog.New(slog.DiscardHandler),
	}
	if cfg.Perturb {
		pt := cache.DefaultPerturber()
		l.perturb = &pt
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cache == nil {
		l.cache = cache.New(cfg.CacheSize)
	}
	if l.seeds == nil {
		seed, err := core.CryptoSeed()
		if err != nil {
			return nil, errs.Wrap(err, "gachalab: seed init failed")
		}
		l.seeds = newSeedMaker(seed)
	}
	l.eng = engine.New(cfg.Engine, l.log)
	l.ns = cacheNamespace(cfg.Engine)
	return l, nil
}

// cacheNamespace 會影響結果內容的迴圈設定；設定不同的 Lab 共用快取時彼此不會命中。
func cacheNamespace(c engine.Config) string {
	return fmt.Sprintf("max=%d,every=%d,log=%d,history=%t,sampler=%s",
		c.MaxDraws, c.ReportEvery, c.LogEvery, c.KeepHistory, c.Sampler)
}

func (l *Lab) Config() Config         { return l.cfg }
func (l *Lab) Cache() *cache.Cache    { return l.cache }
func (l *Lab) Engine() *engine.Engine { return l.eng }
func (l *Lab) Logger() *slog.Logger   { return l.log }

// NextSeed 取得下一個種子（非負、併發安全）
func (l *Lab) NextSeed() int64 { return l.seeds.next() }

// Simulate 同步執行一次模擬，seed 由 Lab 產生。
func (l *Lab) Simulate(p *spec.Params, onProgress engine.ProgressFunc, isCancelled engine.CancelFunc) (*stats.Result, error) {
	return l.SimulateContext(context.Background(), p, l.NextSeed(), onProgress, isCancelled)
}

// SimulateWithSeed 同 Simulate，但由呼叫端指定 seed。
func (l *Lab) SimulateWithSeed(p *spec.Params, seed int64, onProgress engine.ProgressFunc, isCancelled engine.CancelFunc) (*stats.Result, error) {
	return l.SimulateContext(context.Background(), p, seed, onProgress, isCancelled)
}

// SimulateContext 完整入口：ctx 取消與 isCancelled 任一成立都會停止迴圈。
//
// 錯誤只有參數無效（errors.Is(err, spec.ErrInvalidDistribution)）。
// 被取消的部分結果不會放進快取。
func (l *Lab) SimulateContext(ctx context.Context, p *spec.Params, seed int64, onProgress engine.ProgressFunc, isCancelled engine.CancelFunc) (*stats.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if r, ok := l.cache.GetIn(l.ns, p); ok {
		return l.fromCache(r, seed, onProgress), nil
	}
	res, err := l.eng.RunContext(ctx, p, l.pf.New(seed), onProgress, isCancelled)
	if err != nil {
		return nil, err
	}
	res.Seed = seed
	if res.Status != spec.StatusCancelled {
		if err := l.cache.PutIn(l.ns, p, res); err != nil {
			l.log.Warn("gachalab: cache put failed", slog.Any("err", err))
		}
	}
	return res, nil
}

// cachedSteps 命中快取時的四個進度點
var cachedSteps = [...]engine.Progress{
	{Percentage: 25, Status: "loading cached result"},
	{Percentage: 50, Status: "analysing parameters"},
	{Percentage: 75, Status: "preparing results"},
	{Percentage: 100, Status: "completed"},
}

// cachedProgress 命中快取時要回報的進度。
// 只有 Completed 會走到 100；觸頂的結果以封頂後的完成度與狀態名稱收尾，前面的步驟也不超過它。
func cachedProgress(r *stats.Result) []engine.Progress {
	steps := cachedSteps
	if r.Status != spec.StatusCompleted {
		last := math.Round(min(engine.ProgressCap, r.Summary.Completion))
		for i := range steps {
			steps[i].Percentage = min(steps[i].Percentage, last)
		}
		steps[len(steps)-1].Status = r.Status.String()
	}
	for i := range steps {
		steps[i].Draw = r.Summary.Draws
	}
	return steps[:]
}

func (l *Lab) fromCache(r *stats.Result, seed int64, onProgress engine.ProgressFunc) *stats.Result {
	for _, step := range cachedProgress(r) {
		l.report(onProgress, step)
	}
	if l.perturb != nil {
		r = l.perturb.Apply(r, core.New(l.pf.New(seed)))
	}
	r.Cached = true
	l.log.Debug("gachalab: cache hit", slog.Int("draws", r.Summary.Draws), slog.Int64("seed", seed))
	return r
}

func (l *Lab) report(fn engine.ProgressFunc, pg engine.Progress) {
	if fn == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			l.log.Warn("gachalab: progress callback panicked", slog.Any("panic", v))
		}
	}()
	fn(pg)
}

// NewSimulator 建立批次模擬器，seed 由 Lab 產生。
func (l *Lab) NewSimulator(p *spec.Params) (*Simulator, error) {
	return l.NewSimulatorWithSeed(p, l.NextSeed())
}

func (l *Lab) NewSimulatorWithSeed(p *spec.Params, seed int64) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return newSimulator(p, l.cfg.Engine, l.pf, seed, l.log), nil
}
