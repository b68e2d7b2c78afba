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

// Package httperr 把 errs 分級映射成 HTTP 狀態碼與 JSON 錯誤回應。
//
// 映射放在 server 邊界層，核心的 errs 套件不需要依賴 net/http。
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
)

// Body 錯誤回應的 JSON 形狀
type Body struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Invalid bool   `json:"invalid,omitempty"` // 參數無效（在任何抽取之前就被拒絕）
}

// StatusCode 將錯誤映射成 HTTP status code：
//   - ctx timeout/cancel → 504/408
//   - errs.Warn         → 400（參數無效也在這裡）
//   - errs.Missing      → 404
//   - errs.Fatal        → 500
func StatusCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	var e *errs.E
	if errors.As(err, &e) {
		switch e.ErrLv {
		case errs.Warn:
			return http.StatusBadRequest
		case errs.Missing:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// NewBody 組出錯誤回應
func NewBody(err error) Body {
	return Body{
		Error:   err.Error(),
		Status:  StatusCode(err),
		Invalid: errors.Is(err, spec.ErrInvalidDistribution),
	}
}

// Errs 寫回 JSON 錯誤回應
func Errs(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	b := NewBody(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(b.Status)
	_ = json.NewEncoder(w).Encode(b)
}

// Log 只記錄值得關注的錯誤：逾時類以 Warn，5xx 以 Error，一般 4xx 不記。
func Log(log *slog.Logger, msg string, err error) {
	if err == nil || log == nil {
		return
	}
	status := StatusCode(err)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		log.Warn(msg, slog.Int("status", status), slog.Any("err", err))
	case status >= 500:
		log.Error(msg, slog.Int("status", status), slog.Any("err", err))
	}
}
