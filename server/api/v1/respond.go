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

// Package v1 gachalab 的 v1 HTTP API。
//
// 三種擺放方式共用同一個 gachalab.Runtime：
//   - 同步：GET/POST /v1/simulate 直接回傳結果。
//   - 訊息：GET /v1/ws/simulate 以 websocket 推送 progress / complete / error。
//   - job：POST /v1/jobs 建立、GET /v1/jobs/{id} 輪詢、DELETE /v1/jobs/{id} 取消。
package v1

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
