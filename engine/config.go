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

import "github.com/zintix-labs/gachalab/sdk/sampler"

const (
	DefaultMaxDraws    = 10000
	DefaultReportEvery = 10
	DefaultLogEvery    = 50

	// ProgressCap 迴圈進行中回報的進度上限，100 只在真正完成時送出一次。
	ProgressCap = 95
)

// Config 迴圈設定
type Config struct {
	MaxDraws    int          `yaml:"max_draws"    json:"maxDraws"`    // 抽數上限，觸頂即 Exhausted
	ReportEvery int          `yaml:"report_every" json:"reportEvery"` // 每幾抽回報進度並留快照
	LogEvery    int          `yaml:"log_every"    json:"logEvery"`    // 每幾抽寫一行里程碑
	KeepHistory bool         `yaml:"keep_history" json:"keepHistory"` // 是否保留逐物品紀錄
	Sampler     sampler.Kind `yaml:"sampler"      json:"sampler"`
}

func DefaultConfig() Config {
	return Config{
		MaxDraws:    DefaultMaxDraws,
		ReportEvery: DefaultReportEvery,
		LogEvery:    DefaultLogEvery,
		KeepHistory: true,
		Sampler:     sampler.KindScan,
	}
}

// Valid 回傳修正後的設定：非正值改回預設，未知抽樣器改回 scan。
func (c Config) Valid() Config {
	if c.MaxDraws <= 0 {
		c.MaxDraws = DefaultMaxDraws
	}
	if c.ReportEvery <= 0 {
		c.ReportEvery = DefaultReportEvery
	}
	if c.LogEvery <= 0 {
		c.LogEvery = DefaultLogEvery
	}
	if c.Sampler != sampler.KindAlias {
		c.Sampler = sampler.KindScan
	}
	return c
}
