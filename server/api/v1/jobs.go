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
	"log/slog"
	"net/http"

	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/dto"
	"github.com/zintix-labs/gachalab/server/httperr"
	"github.com/zintix-labs/gachalab/server/netsvr"
	"github.com/zintix-labs/gachalab/server/svrcfg"
	"github.com/zintix-labs/gachalab/spec"
)

// JobHandler start / poll 擺放
type JobHandler struct {
	jobs    *gachalab.Jobs
	presets *spec.Presets
	log     *slog.Logger
}

func NewJobHandler(sCfg *svrcfg.SvrCfg) (*JobHandler, error) {
	if sCfg == nil || sCfg.Runtime == nil || sCfg.Presets == nil {
		return nil, errs.NewFatal("job handler: runtime and presets are required")
	}
	return &JobHandler{jobs: sCfg.Runtime.Jobs(), presets: sCfg.Presets, log: sCfg.Log}, nil
}

// Start 建立 job，回 202 與 Location。參數無效時回 400，不建立 job。
func (jh *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	req, err := dto.DecodeSimulateRequest(r)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	p, err := req.Resolve(jh.presets)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	id, err := jh.jobs.Start(p, req.Seed)
	if err != nil {
		httperr.Log(jh.log, "v1.jobs.start", err)
		httperr.Errs(w, err)
		return
	}
	v, err := jh.jobs.Status(id)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+id)
	writeJSON(w, http.StatusAccepted, dto.JobCreated{ID: v.ID, State: string(v.State), Seed: v.Seed})
}

// Status 輪詢 job 快照（含進度；結束後含結果）
func (jh *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	v, err := jh.jobs.Status(netsvr.PathParam(r, "id"))
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Result 只取已結束 job 的結果；尚未結束回 400。
func (jh *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	id := netsvr.PathParam(r, "id")
	res, err := jh.jobs.Result(id)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	v, _ := jh.jobs.Status(id)
	resp := dto.NewSimulateResponse(v.Params, res)
	if resp.Warning != "" {
		w.Header().Set(dto.WarningHeader, resp.Warning)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel 要求取消，回傳當下快照；迴圈在下一抽結束時停止。
func (jh *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	v, err := jh.jobs.Cancel(netsvr.PathParam(r, "id"))
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}
