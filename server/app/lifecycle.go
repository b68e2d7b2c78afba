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

package app

import (
	"context"
	"sync"
)

// Component 任何可啟動 / 可關閉的長生命週期元件。
//   - Run() 阻塞直到元件停止（正常或錯誤）。
//   - Shutdown(ctx) 要求優雅關閉，實作需尊重 ctx 的期限。
//
// 例如 HTTP server、模擬 runtime、報告儲存。
type Component interface {
	Run() error
	Shutdown(ctx context.Context) error
}

// closer 把只有「關閉」動作的資源包成 Component：Run 阻塞到 Shutdown 被呼叫。
type closer struct {
	name string
	fn   func(ctx context.Context) error
	once sync.Once
	done chan struct{}
	err  error
}

// OnShutdown 建立只在關閉時執行 fn 的 Component，fn 最多執行一次。
func OnShutdown(name string, fn func(ctx context.Context) error) Component {
	return &closer{name: name, fn: fn, done: make(chan struct{})}
}

func (c *closer) Run() error {
	<-c.done
	return nil
}

func (c *closer) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		defer close(c.done)
		if c.fn != nil {
			c.err = c.fn(ctx)
		}
	})
	return c.err
}

func (c *closer) String() string { return c.name }
