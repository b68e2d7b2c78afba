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

package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/dto"
	"github.com/zintix-labs/gachalab/server/httperr"
	"github.com/zintix-labs/gachalab/server/svrcfg"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// SimHandler 同步模擬、舊版相容端點、方案列表與 runtime 觀測
type SimHandler struct {
	rt      *gachalab.Runtime
	presets *spec.Presets
	log     *slog.Logger
	timeout time.Duration
}

func NewSimHandler(sCfg *svrcfg.SvrCfg) (*SimHandler, error) {
	if sCfg == nil || sCfg.Runtime == nil || sCfg.Presets == nil {
		return nil, errs.NewFatal("sim handler: runtime and presets are required")
	}
	return &SimHandler{
		rt:      sCfg.Runtime,
		presets: sCfg.Presets,
		log:     sCfg.Log,
		timeout: sCfg.SimTimeout,
	}, nil
}

// Simulate 同步模擬。
//
// 參數來源依序為 params、preset、內建 default。觸頂結束時在標頭帶 X-Gachalab-Warning。
// ?format=yaml 只輸出結果本體（YAML）；預設輸出 JSON 的 SimulateResponse。
// 請求逾時或客戶端離線時迴圈停止，回傳狀態為 cancelled 的部分結果。
func (sh *SimHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	rep, _, ok := stats.RenderOf(format)
	if format != "" && !ok {
		httperr.Errs(w, errs.Warnf("unknown format %q (want json|yaml)", format))
		return
	}
	req, err := dto.DecodeSimulateRequest(r)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	p, err := req.Resolve(sh.presets)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	res, err := sh.simulate(r.Context(), p, req.Seed)
	if err != nil {
		httperr.Log(sh.log, "v1.simulate", err)
		httperr.Errs(w, err)
		return
	}
	resp := dto.NewSimulateResponse(p, res)
	if resp.Warning != "" {
		w.Header().Set(dto.WarningHeader, resp.Warning)
	}
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := res.WriteWith(w, rep); err != nil {
		sh.log.Warn("v1.simulate: render failed", slog.Any("err", err))
	}
}

// Legacy 接受舊版前端的 payload，輸出舊版的結果形狀。
func (sh *SimHandler) Legacy(w http.ResponseWriter, r *http.Request) {
	raw, err := dto.ReadBody(r)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	lr, err := dto.DecodeLegacyRequest(raw)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	res, err := sh.simulate(r.Context(), lr.Params, 0)
	if err != nil {
		httperr.Log(sh.log, "v1.legacy", err)
		httperr.Errs(w, err)
		return
	}
	out := dto.NewLegacyResult(lr.Params, res)
	if out.Warning != "" {
		w.Header().Set(dto.WarningHeader, out.Warning)
	}
	writeJSON(w, http.StatusOK, out)
}

// Presets 列出可用方案（宣告順序）
func (sh *SimHandler) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NewPresetViews(sh.presets))
}

// Metrics runtime 快照：快取、job 與 worker 數量
func (sh *SimHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sh.rt.Metrics())
}

func (sh *SimHandler) simulate(ctx context.Context, p *spec.Params, seed int64) (*stats.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()
	start := time.Now()
	res, err := sh.rt.Simulate(ctx, p, seed, nil)
	if err != nil {
		return nil, err
	}
	sh.log.Debug("v1.simulate",
		slog.String("status", res.Status.String()),
		slog.Bool("cached", res.Cached),
		slog.Int("draws", res.Summary.Draws),
		slog.Int64("seed", res.Seed),
		slog.Duration("used", time.Since(start)),
	)
	return res, nil
}
