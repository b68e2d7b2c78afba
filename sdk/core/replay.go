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

package core

import (
	"encoding/binary"
	"math"

	"github.com/zintix-labs/gachalab/errs"
)

// Replay 依序回放一組 [0,1) 浮點數的 PRNG，用完後從頭循環。
//
// 用途是回放與測試：把想要的分類序列換算成落在各分類累積區間內的值，
// 就能讓加權抽樣器產出指定序列。
type Replay struct {
	script []float64
	pos    int
}

// NewReplay 建立回放來源；值會被夾到 [0,1)，空腳本一律回傳 0。
func NewReplay(values ...float64) *Replay {
	script := make([]float64, len(values))
	for i, v := range values {
		script[i] = min(max(v, 0), math.Nextafter(1, 0))
	}
	return &Replay{script: script}
}

func (r *Replay) Float64() float64 {
	if len(r.script) == 0 {
		return 0
	}
	v := r.script[r.pos]
	r.pos = (r.pos + 1) % len(r.script)
	return v
}

func (r *Replay) Uint64() uint64 {
	return uint64(r.Float64() * (1 << 53))
}

func (r *Replay) UintN(max uint) uint {
	if max == 0 {
		return 0
	}
	return uint(r.Float64() * float64(max))
}

func (r *Replay) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	return int(r.Float64() * float64(max))
}

// Snapshot 只保存目前位置，腳本本身由建立者持有。
func (r *Replay) Snapshot() ([]byte, error) {
	return binary.AppendUvarint(nil, uint64(r.pos)), nil
}

func (r *Replay) Restore(data []byte) error {
	pos, n := binary.Uvarint(data)
	if n <= 0 {
		return errs.NewWarn("replay: bad snapshot")
	}
	if len(r.script) > 0 {
		r.pos = int(pos % uint64(len(r.script)))
	}
	return nil
}
