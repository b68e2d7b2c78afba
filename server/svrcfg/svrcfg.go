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

package svrcfg

import (
	"log/slog"
	"time"

	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/server/logger"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/store"
)

// SvrCfg server 組裝所需的所有依賴，全部由呼叫端明確注入。
type SvrCfg struct {
	Log     *slog.Logger
	Addr    string            // 監聽位址，空白時使用預設 :5808
	Lab     *gachalab.Lab     // 必填
	Runtime *gachalab.Runtime // 空白時由 Lab 建立
	Presets *spec.Presets     // 空白時使用內建方案
	Store   store.ReportStore // 空白時使用記憶體儲存

	WsBufSize  int           // 每條 websocket 的訊息緩衝，1~1024
	SimTimeout time.Duration // 同步模擬單次請求的期限
}

const (
	defaultWsBuf      = 64
	defaultSimTimeout = 30 * time.Second
)

// Valid 補上預設值並檢查必要依賴。
func (sc *SvrCfg) Valid() error {
	if sc.Log != nil {
		if ah, ok := sc.Log.Handler().(*logger.AsyncHandler); ok && !ah.Ready() {
			return errs.NewFatal("nil default log handler: async handler is nil")
		}
	} else {
		sc.Log, _ = logger.NewAsync(1024, logger.ModeDev)
	}
	if sc.Lab == nil {
		return errs.NewFatal("lab is required")
	}
	if sc.Runtime == nil {
		sc.Runtime = sc.Lab.BuildRuntime()
	} else if sc.Runtime.Lab() != sc.Lab {
		return errs.NewFatal("runtime was built from a different lab")
	}
	if sc.Presets == nil {
		sc.Presets = spec.BuiltinPresets()
	}
	if _, ok := sc.Presets.Get(spec.DefaultPresetName); !ok {
		return errs.NewFatal("presets must contain " + spec.DefaultPresetName)
	}
	if sc.Store == nil {
		sc.Store = store.NewMemStore()
	}
	if sc.WsBufSize <= 0 {
		sc.WsBufSize = defaultWsBuf
	}
	sc.WsBufSize = min(1024, sc.WsBufSize)
	if sc.SimTimeout <= 0 {
		sc.SimTimeout = defaultSimTimeout
	}
	return nil
}
