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

package spec

import "github.com/zintix-labs/gachalab/errs"

// Status 模擬的終止狀態。三者都是正常結束，不是錯誤。
type Status uint8

const (
	StatusCompleted Status = iota // 所有目標達成
	StatusCancelled               // 呼叫端取消，結果為部分結果
	StatusExhausted               // 觸及抽數上限仍未達成目標
)

var statusName = [...]string{
	StatusCompleted: "completed",
	StatusCancelled: "cancelled",
	StatusExhausted: "exhausted",
}

func (s Status) String() string {
	if int(s) < len(statusName) {
		return statusName[s]
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusName) {
		return nil, errs.Fatalf("unknown status %d", s)
	}
	return []byte(statusName[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusName {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return errs.Warnf("unknown status %q", string(b))
}

// DrawRecord 單一物品的抽取紀錄，Draw 從 1 起算。
type DrawRecord struct {
	Draw     int    `json:"draw"     yaml:"draw"`
	Category string `json:"category" yaml:"category"`
	Counted  bool   `json:"counted"  yaml:"counted"` // 是否計入目標（否則為 surplus）
}
