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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// ErrJobNotFound job 不存在或已過期
var ErrJobNotFound = errs.NewMissing("job not found")

// JobState job 的生命週期狀態
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Finished 是否已進入終止狀態
func (s JobState) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobView 對外的 job 快照
type JobView struct {
	ID        string        `json:"id"`
	State     JobState      `json:"state"`
	Progress  float64       `json:"progress"`
	Message   string        `json:"message"`
	Seed      int64         `json:"seed"`
	Params    *spec.Params  `json:"params"`
	Result    *stats.Result `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type job struct {
	mu     sync.Mutex
	view   JobView
	cancel atomic.Bool
}

func (j *job) snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.view
}

func (j *job) update(fn func(v *JobView)) {
	j.mu.Lock()
	fn(&j.view)
	j.view.UpdatedAt = time.Now()
	j.mu.Unlock()
}

// Jobs 輪詢式擺放：Start 立即回傳 id，之後以 Status 查詢、Cancel 取消。
//
// 已結束的 job 保留 ttl 後由背景清理；Close 會取消所有進行中的 job 並等待它們結束。
type Jobs struct {
	lab  *Lab
	ttl  time.Duration
	log  *slog.Logger
	mu   sync.RWMutex
	jobs map[string]*job

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewJobs 建立 job 管理器並啟動清理 goroutine。ttl <= 0 使用 Lab 設定。
func NewJobs(lab *Lab, ttl time.Duration) *Jobs {
	if ttl <= 0 {
		ttl = lab.cfg.JobTTL
	}
	js := &Jobs{
		lab:  lab,
		ttl:  ttl,
		log:  lab.log,
		jobs: make(map[string]*job),
		done: make(chan struct{}),
	}
	go js.janitor(min(ttl, time.Minute))
	return js
}

// Start 驗證參數後建立 job 並在背景執行。參數無效時直接回錯，不建立 job。
// seed 為 0 時由 Lab 產生。
func (js *Jobs) Start(p *spec.Params, seed int64) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if seed == 0 {
		seed = js.lab.NextSeed()
	}
	p = p.Clone()
	now := time.Now()
	j := &job{view: JobView{
		ID:        uuid.NewString(),
		State:     JobPending,
		Message:   "queued",
		Seed:      seed,
		Params:    p,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	// closed 的檢查與 wg.Add 在同一把鎖內，Close 的 wg.Wait 不會和 Add 交錯。
	js.mu.Lock()
	if js.closed.Load() {
		js.mu.Unlock()
		return "", errs.NewFatal("jobs closed")
	}
	js.jobs[j.view.ID] = j
	js.wg.Add(1)
	js.mu.Unlock()

	go js.run(j, p)
	return j.view.ID, nil
}

func (js *Jobs) run(j *job, p *spec.Params) {
	defer js.wg.Done()
	defer func() {
		if v := recover(); v != nil {
			js.log.Error("gachalab: job panicked", slog.String("id", j.view.ID), slog.Any("panic", v))
			j.update(func(v *JobView) {
				v.State = JobFailed
				v.Error = "internal error"
			})
		}
	}()

	j.update(func(v *JobView) {
		v.State = JobRunning
		v.Message = "running"
	})
	onProgress := func(pg engine.Progress) {
		j.update(func(v *JobView) {
			v.Progress = pg.Percentage
			v.Message = pg.Status
		})
	}
	isCancelled := func() bool {
		return j.cancel.Load() || js.closed.Load()
	}

	res, err := js.lab.SimulateContext(context.Background(), p, j.view.Seed, onProgress, isCancelled)
	j.update(func(v *JobView) {
		switch {
		case err != nil:
			v.State = JobFailed
			v.Error = err.Error()
		case res.Status == spec.StatusCancelled:
			v.State = JobCancelled
			v.Result = res
		default:
			v.State = JobCompleted
			v.Result = res
		}
	})
	js.log.Debug("gachalab: job finished", slog.String("id", j.view.ID), slog.String("state", string(j.snapshot().State)))
}

// Status 取得 job 快照
func (js *Jobs) Status(id string) (JobView, error) {
	j, ok := js.get(id)
	if !ok {
		return JobView{}, errs.Wrapf(ErrJobNotFound, "job %q", id)
	}
	return j.snapshot(), nil
}

// Cancel 要求取消；迴圈在下一抽結束時停止。已結束的 job 不受影響。
func (js *Jobs) Cancel(id string) (JobView, error) {
	j, ok := js.get(id)
	if !ok {
		return JobView{}, errs.Wrapf(ErrJobNotFound, "job %q", id)
	}
	j.cancel.Store(true)
	return j.snapshot(), nil
}

// Result 取得已結束 job 的結果；尚未結束回傳 Warn，失敗的 job 回傳其錯誤訊息。
func (js *Jobs) Result(id string) (*stats.Result, error) {
	v, err := js.Status(id)
	if err != nil {
		return nil, err
	}
	switch {
	case !v.State.Finished():
		return nil, errs.Warnf("job %q is %s", id, v.State)
	case v.State == JobFailed:
		return nil, errs.NewWithExtra(errs.Fatal, "job failed", v.Error)
	}
	return v.Result, nil
}

// Wait 每 interval 輪詢一次直到 job 結束或 ctx 取消
func (js *Jobs) Wait(ctx context.Context, id string, interval time.Duration) (JobView, error) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		v, err := js.Status(id)
		if err != nil || v.State.Finished() {
			return v, err
		}
		select {
		case <-ctx.Done():
			return v, errs.Wrap(ctx.Err(), "wait job")
		case <-t.C:
		}
	}
}

func (js *Jobs) Len() int {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return len(js.jobs)
}

// Sweep 移除結束超過 ttl 的 job，回傳移除數量
func (js *Jobs) Sweep(now time.Time) int {
	js.mu.Lock()
	defer js.mu.Unlock()
	n := 0
	for id, j := range js.jobs {
		v := j.snapshot()
		if v.State.Finished() && now.Sub(v.UpdatedAt) > js.ttl {
			delete(js.jobs, id)
			n++
		}
	}
	return n
}

// Close 取消所有進行中的 job 並等待結束，可重複呼叫。
func (js *Jobs) Close() {
	js.closeOnce.Do(func() {
		js.mu.Lock()
		js.closed.Store(true)
		js.mu.Unlock()
		close(js.done)
	})
	js.wg.Wait()
}

func (js *Jobs) get(id string) (*job, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	j, ok := js.jobs[id]
	return j, ok
}

func (js *Jobs) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-js.done:
			return
		case now := <-t.C:
			if n := js.Sweep(now); n > 0 {
				js.log.Debug("gachalab: expired jobs removed", slog.Int("count", n))
			}
		}
	}
}
