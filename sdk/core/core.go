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

// Package core 提供模擬所需的亂數來源合約與預設實作。
package core

import (
	"crypto/rand"
	"math"
	"math/big"
)

// PRNG 模擬核心使用的亂數來源，需同時支援取樣與狀態保存/還原。
type PRNG interface {
	RAND
	Restorable
}

// Restorable 可快照與還原的狀態
type Restorable interface {
	Snapshot() ([]byte, error)
	Restore([]byte) error
}

// RAND 核心取樣能力。
//
// 加權抽樣只需要 Float64；UintN/IntN 保留給整數版 alias table。
type RAND interface {
	// Uint64 回傳 uint64 亂數。
	Uint64() uint64
	// Float64 回傳 [0,1) 的浮點亂數。
	Float64() float64
	// UintN 回傳 [0,max) 的 uint 亂數，max == 0 回傳 0。
	UintN(uint) uint
	// IntN 回傳 [0,max) 的 int 亂數，max <= 0 回傳 -1。
	IntN(int) int
}

// PRNGFactory 以 seed 建立 PRNG。
//
// 合約：同一實作、同一版本下，New(seed) 必須是決定性的，
// 相同 seed 得到相同輸出序列。模擬的可重現性完全依賴這一點。
type PRNGFactory interface {
	New(int64) PRNG
}

// DefaultPRNG 預設工廠，產生 PCG64。
type DefaultPRNG struct{}

func (d *DefaultPRNG) New(seed int64) PRNG {
	return NewPCG64(seed)
}

func Default() *DefaultPRNG {
	return &DefaultPRNG{}
}

// CryptoSeed 以加密亂數產生非負 seed，失敗時回傳 error（呼叫端決定如何處理）。
func CryptoSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// Core 封裝 PRNG，並提供模擬常用的取樣方法。
type Core struct {
	PRNG
}

// New 允許使用外部實作的 PRNG 建立 Core。
func New(rng PRNG) *Core {
	return &Core{rng}
}

// Uniform 回傳 [0,upper) 的均勻亂數，upper <= 0 回傳 0。
func (c *Core) Uniform(upper float64) float64 {
	if upper <= 0 {
		return 0
	}
	return c.Float64() * upper
}

// Jitter 回傳 [1-pct/100, 1+pct/100) 的乘數，pct <= 0 回傳 1。
func (c *Core) Jitter(pct float64) float64 {
	if pct <= 0 {
		return 1
	}
	return 1 + (c.Float64()*2-1)*pct/100
}
