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

// Package app 管理長期運行元件的啟動與優雅關閉。
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// DefaultShutdownTimeout 優雅關閉的預設期限
const DefaultShutdownTimeout = 5 * time.Second

// App 啟動所有註冊的 Component，收到 OS 信號或任一 Component 結束時依註冊順序關閉。
//
// 註冊順序即關閉順序：先註冊 HTTP server（停止收新請求），再註冊背後的 runtime / store。
type App struct {
	comps   []Component
	log     *slog.Logger
	timeout time.Duration
}

// New 建立 App，log 為 nil 時不輸出。
func New(log *slog.Logger) *App {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &App{log: log, timeout: DefaultShutdownTimeout}
}

// NewWith 建立 App 並依序註冊 Component
func NewWith(log *slog.Logger, comps ...Component) *App {
	a := New(log)
	for _, c := range comps {
		a.Register(c)
	}
	return a
}

// Register 註冊 Component，nil 會被忽略。
func (a *App) Register(c Component) {
	if c == nil {
		return
	}
	a.comps = append(a.comps, c)
}

// SetShutdownTimeout 調整優雅關閉期限，<= 0 時維持預設。
func (a *App) SetShutdownTimeout(td time.Duration) {
	if td > 0 {
		a.timeout = td
	}
}

// Run 阻塞直到 SIGINT/SIGTERM 或任一 Component 的 Run 返回。
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 同 Run，但以 ctx 取代 OS 信號。
//   - ctx 結束：優雅關閉並回傳 nil。
//   - Component 先結束：優雅關閉並回傳它的錯誤（http.ErrServerClosed 視為正常）。
func (a *App) RunContext(ctx context.Context) error {
	errCh := make(chan error, len(a.comps))
	for _, c := range a.comps {
		go func(c Component) {
			errCh <- c.Run()
		}(c)
	}

	select {
	case <-ctx.Done():
		a.log.Info("app: shutting down", slog.String("reason", "signal"))
		a.gracefulShutdown(a.timeout)
		return nil
	case err := <-errCh:
		a.log.Info("app: shutting down", slog.String("reason", "component stopped"), slog.Any("err", err))
		a.gracefulShutdown(a.timeout)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// gracefulShutdown 在 td 內依序呼叫 Shutdown；單一失敗只記錄，不中斷後續元件。
func (a *App) gracefulShutdown(td time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), td)
	defer cancel()
	for _, c := range a.comps {
		if err := c.Shutdown(ctx); err != nil {
			a.log.Warn("app: shutdown failed", slog.Any("err", err))
		}
	}
}
