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
	"sync"
	"sync/atomic"

	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// Runtime 服務端的運行入口：持有 Lab 與 Jobs，並為每條連線建立 Worker。
type Runtime struct {
	lab  *Lab
	jobs *Jobs

	mu      sync.Mutex
	workers map[*Worker]struct{}

	// lifecycle
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	reason    atomic.Value // string
}

// BuildRuntime 由 Lab 建立 Runtime。
func (l *Lab) BuildRuntime() *Runtime {
	return &Runtime{
		lab:     l,
		jobs:    NewJobs(l, l.cfg.JobTTL),
		workers: make(map[*Worker]struct{}),
		done:    make(chan struct{}),
	}
}

func (rt *Runtime) Lab() *Lab   { return rt.lab }
func (rt *Runtime) Jobs() *Jobs { return rt.jobs }

// Simulate 同步擺放；ctx 取消會讓迴圈在下一抽結束時停止並回傳部分結果。
func (rt *Runtime) Simulate(ctx context.Context, p *spec.Params, seed int64, onProgress engine.ProgressFunc) (*stats.Result, error) {
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(ctx.Err(), "simulate canceled/timeout")
	case <-rt.done:
		rt.closed.Store(true)
		return nil, errs.NewFatal("runtime closed: " + rt.ClosedReason())
	default:
	}
	if seed == 0 {
		seed = rt.lab.NextSeed()
	}
	return rt.lab.SimulateContext(ctx, p, seed, onProgress, rt.Closed)
}

// NewWorker 建立並啟動一個 Worker，Runtime 關閉時一併關閉。
func (rt *Runtime) NewWorker(ctx context.Context, buf int) (*Worker, error) {
	if rt.Closed() {
		return nil, errs.NewFatal("runtime closed: " + rt.ClosedReason())
	}
	w := NewWorker(rt.lab, 0, buf)
	rt.mu.Lock()
	rt.workers[w] = struct{}{}
	rt.mu.Unlock()
	w.Start(ctx)
	return w, nil
}

// ReleaseWorker 關閉 Worker 並停止追蹤
func (rt *Runtime) ReleaseWorker(w *Worker) {
	rt.mu.Lock()
	delete(rt.workers, w)
	rt.mu.Unlock()
	w.Close()
}

// RuntimeMetrics 拉取式觀測快照
type RuntimeMetrics struct {
	Closed      bool            `json:"closed"`
	CloseReason string          `json:"close_reason"`
	CacheLen    int             `json:"cache_len"`
	CacheSize   int             `json:"cache_size"`
	Jobs        int             `json:"jobs"`
	Workers     []WorkerMetrics `json:"workers"`
}

func (rt *Runtime) Metrics() RuntimeMetrics {
	m := RuntimeMetrics{
		Closed:      rt.Closed(),
		CloseReason: rt.ClosedReason(),
		CacheLen:    rt.lab.cache.Len(),
		CacheSize:   rt.lab.cache.Size(),
		Jobs:        rt.jobs.Len(),
	}
	rt.mu.Lock()
	for w := range rt.workers {
		m.Workers = append(m.Workers, w.Metrics())
	}
	rt.mu.Unlock()
	return m
}

// Close transitions the runtime into a closed state. It is safe to call multiple times.
func (rt *Runtime) Close() {
	rt.CloseWithReason("closed")
}

// CloseWithReason closes the runtime, its jobs and workers, and records the reason (written once).
func (rt *Runtime) CloseWithReason(reason string) {
	rt.closeOnce.Do(func() {
		if reason == "" {
			reason = "closed"
		}
		rt.reason.Store(reason)
		rt.closed.Store(true)
		close(rt.done)

		rt.jobs.Close()
		rt.mu.Lock()
		ws := make([]*Worker, 0, len(rt.workers))
		for w := range rt.workers {
			ws = append(ws, w)
		}
		clear(rt.workers)
		rt.mu.Unlock()
		for _, w := range ws {
			w.Close()
		}
	})
}

// Closed reports whether the runtime has been closed.
func (rt *Runtime) Closed() bool {
	return rt.closed.Load()
}

func (rt *Runtime) ClosedReason() string {
	if v := rt.reason.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
