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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zintix-labs/gachalab/engine"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// MessageType Worker 送出的訊息種類
type MessageType string

const (
	MsgReady    MessageType = "ready"
	MsgProgress MessageType = "progress"
	MsgComplete MessageType = "complete"
	MsgError    MessageType = "error"
)

// Request 送進 Worker 的模擬請求；ID 空白時自動產生，Seed 為 0 時由 Lab 產生。
type Request struct {
	ID     string       `json:"id"`
	Params *spec.Params `json:"params"`
	Seed   int64        `json:"seed"`
}

// Message Worker 的輸出訊息
type Message struct {
	Type     MessageType      `json:"type"`
	ID       string           `json:"id,omitempty"`
	Progress *engine.Progress `json:"progress,omitempty"`
	Result   *stats.Result    `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Invalid  bool             `json:"invalid,omitempty"` // 參數無效（對應 4xx）
}

// Worker 訊息式擺放：與呼叫端只透過 channel 溝通。
//
// 它維護 n 個 goroutine 從 inbox 取出請求執行，輸出 progress / complete / error 訊息：
//   - progress 不阻塞迴圈：outbox 滿時直接丟棄該筆。
//   - complete / error 一定送達（除非 Worker 已關閉）。
//   - 單一請求 panic 只會變成一則 error 訊息，goroutine 繼續服務下一筆。
type Worker struct {
	lab   *Lab
	n     int
	inbox chan Request
	out   chan Message

	mu      sync.Mutex
	cancels map[string]*atomic.Bool

	wg          sync.WaitGroup
	startOnce   sync.Once
	done        chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value // string
	outOnce     sync.Once

	inflight  atomic.Int32
	processed atomic.Int64
	panics    atomic.Int32
	dropped   atomic.Int64
}

// NewWorker 建立 Worker；n 為 goroutine 數（<= 0 使用 Lab 設定），buf 為 inbox / outbox 緩衝。
func NewWorker(lab *Lab, n int, buf int) *Worker {
	if n <= 0 {
		n = lab.cfg.Workers
	}
	w := &Worker{
		lab:     lab,
		n:       n,
		inbox:   make(chan Request, max(1, buf)),
		out:     make(chan Message, max(1, buf)),
		cancels: make(map[string]*atomic.Bool),
		done:    make(chan struct{}),
	}
	w.closeReason.Store("")
	return w
}

// Start 啟動 goroutine 並送出一則 ready 訊息。只有第一次呼叫有效。
// ctx 結束時 Worker 自動關閉。
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(w.n)
		for range w.n {
			go w.loop()
		}
		go func() {
			select {
			case <-ctx.Done():
				w.closeWithReason("context_done")
			case <-w.done:
			}
		}()
		w.send(Message{Type: MsgReady})
	})
}

// Messages 輸出訊息；Close 之後會被關閉。
func (w *Worker) Messages() <-chan Message { return w.out }

// Submit 送入請求並回傳請求 ID。inbox 滿時等待，直到 ctx 結束或 Worker 關閉。
func (w *Worker) Submit(ctx context.Context, req Request) (string, error) {
	if w.Closed() {
		return "", errs.NewFatal("worker closed: " + w.ClosedReason())
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	flag := new(atomic.Bool)
	w.mu.Lock()
	w.cancels[req.ID] = flag
	w.mu.Unlock()

	select {
	case <-w.done:
		w.forget(req.ID)
		return "", errs.NewFatal("worker closed: " + w.ClosedReason())
	case <-ctx.Done():
		w.forget(req.ID)
		return "", errs.NewWarn("submit canceled/timeout: " + ctx.Err().Error())
	case w.inbox <- req:
		return req.ID, nil
	}
}

// Cancel 取消指定請求（排隊中或執行中皆可），回傳是否找到。
func (w *Worker) Cancel(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	flag, ok := w.cancels[id]
	if ok {
		flag.Store(true)
	}
	return ok
}

// Close 關閉 Worker：執行中的模擬在下一抽結束時停止，之後關閉 Messages。
func (w *Worker) Close() {
	w.startOnce.Do(func() {}) // 關閉後不再允許 Start
	w.closeWithReason("closed")
	w.wg.Wait()
	w.outOnce.Do(func() { close(w.out) })
}

func (w *Worker) Closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Worker) ClosedReason() string {
	if v := w.closeReason.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (w *Worker) closeWithReason(reason string) {
	w.closeOnce.Do(func() {
		if reason == "" {
			reason = "closed"
		}
		w.closeReason.Store(reason)
		close(w.done)
	})
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case req := <-w.inbox:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req Request) {
	w.inflight.Add(1)
	defer w.inflight.Add(-1)
	defer w.forget(req.ID)
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			w.lab.log.Error("gachalab: worker request panicked", slog.String("id", req.ID), slog.Any("panic", r))
			w.send(Message{Type: MsgError, ID: req.ID, Error: fmt.Sprintf("worker panic: %v", r)})
		}
	}()

	flag := w.flag(req.ID)
	seed := req.Seed
	if seed == 0 {
		seed = w.lab.NextSeed()
	}
	onProgress := func(pg engine.Progress) {
		w.trySend(Message{Type: MsgProgress, ID: req.ID, Progress: &pg})
	}
	isCancelled := func() bool {
		return flag.Load() || w.Closed()
	}
	res, err := w.lab.SimulateWithSeed(req.Params, seed, onProgress, isCancelled)
	w.processed.Add(1)
	if err != nil {
		w.send(Message{Type: MsgError, ID: req.ID, Error: err.Error(), Invalid: errs.Level(err) == errs.Warn})
		return
	}
	w.send(Message{Type: MsgComplete, ID: req.ID, Result: res})
}

func (w *Worker) flag(id string) *atomic.Bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.cancels[id]; ok {
		return f
	}
	f := new(atomic.Bool)
	w.cancels[id] = f
	return f
}

func (w *Worker) forget(id string) {
	w.mu.Lock()
	delete(w.cancels, id)
	w.mu.Unlock()
}

// send 一定送達，除非 Worker 已關閉。
func (w *Worker) send(m Message) {
	select {
	case <-w.done:
		// 關閉後仍盡量把終止訊息放進緩衝，讓讀取端看得到結果
		select {
		case w.out <- m:
		default:
			w.dropped.Add(1)
		}
	case w.out <- m:
	}
}

// trySend 不阻塞，outbox 滿時丟棄。
func (w *Worker) trySend(m Message) {
	select {
	case w.out <- m:
	default:
		w.dropped.Add(1)
	}
}

// WorkerMetrics 拉取式的觀測快照
type WorkerMetrics struct {
	Workers     int    `json:"workers"`
	Queued      int    `json:"queued"`   // inbox 當下長度（近似值）
	Inflight    int    `json:"inflight"` // 執行中
	Processed   int64  `json:"processed"`
	Panics      int    `json:"panics"`
	Dropped     int64  `json:"dropped"` // 因 outbox 滿被丟棄的訊息
	Closed      bool   `json:"closed"`
	CloseReason string `json:"close_reason"`
}

func (w *Worker) Metrics() WorkerMetrics {
	return WorkerMetrics{
		Workers:     w.n,
		Queued:      len(w.inbox),
		Inflight:    int(w.inflight.Load()),
		Processed:   w.processed.Load(),
		Panics:      int(w.panics.Load()),
		Dropped:     w.dropped.Load(),
		Closed:      w.Closed(),
		CloseReason: w.ClosedReason(),
	}
}
