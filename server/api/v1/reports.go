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
	"strings"

	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/dto"
	"github.com/zintix-labs/gachalab/server/httperr"
	"github.com/zintix-labs/gachalab/server/netsvr"
	"github.com/zintix-labs/gachalab/server/svrcfg"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
	"github.com/zintix-labs/gachalab/store"
)

// ReportHandler 保存與分享模擬報告
type ReportHandler struct {
	rt      *gachalab.Runtime
	presets *spec.Presets
	store   store.ReportStore
	sim     *SimHandler
	log     *slog.Logger
}

func NewReportHandler(sCfg *svrcfg.SvrCfg, sim *SimHandler) (*ReportHandler, error) {
	if sCfg == nil || sCfg.Runtime == nil || sCfg.Store == nil || sim == nil {
		return nil, errs.NewFatal("report handler: runtime, store and sim handler are required")
	}
	return &ReportHandler{
		rt:      sCfg.Runtime,
		presets: sCfg.Presets,
		store:   sCfg.Store,
		sim:     sim,
		log:     sCfg.Log,
	}, nil
}

// Create 保存報告：結果來自已結束的 job（jobId），或以 params / preset 當場模擬。
func (rh *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	raw, err := dto.ReadBody(r)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	req, err := dto.DecodeReportRequest(raw)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httperr.Errs(w, errs.NewWarn("title is required"))
		return
	}

	var (
		p   *spec.Params
		res *stats.Result
	)
	if req.JobID != "" {
		p, res, err = rh.fromJob(req.JobID)
	} else {
		p, err = req.Simulate.Resolve(rh.presets)
		if err == nil {
			res, err = rh.sim.simulate(r.Context(), p, req.Simulate.Seed)
		}
	}
	if err != nil {
		httperr.Log(rh.log, "v1.reports.create", err)
		httperr.Errs(w, err)
		return
	}

	rep := &store.Report{
		Title:       req.Title,
		Description: req.Description,
		Public:      req.Public,
		Params:      p,
		Result:      res,
	}
	id, err := rh.store.Save(r.Context(), rep)
	if err != nil {
		httperr.Log(rh.log, "v1.reports.save", err)
		httperr.Errs(w, err)
		return
	}
	rep.ID = id
	w.Header().Set("Location", "/v1/reports/"+id)
	writeJSON(w, http.StatusCreated, rep.Entry())
}

// List 報告摘要，新到舊；?public=true 只列公開報告。
func (rh *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := rh.store.List(r.Context())
	if err != nil {
		httperr.Log(rh.log, "v1.reports.list", err)
		httperr.Errs(w, err)
		return
	}
	if r.URL.Query().Get("public") == "true" {
		out := entries[:0]
		for _, e := range entries {
			if e.Public {
				out = append(out, e)
			}
		}
		entries = out
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (rh *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, err := rh.store.Get(r.Context(), netsvr.PathParam(r, "id"))
	if err != nil {
		httperr.Log(rh.log, "v1.reports.get", err)
		httperr.Errs(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (rh *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := rh.store.Delete(r.Context(), netsvr.PathParam(r, "id")); err != nil {
		httperr.Log(rh.log, "v1.reports.delete", err)
		httperr.Errs(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rh *ReportHandler) fromJob(id string) (*spec.Params, *stats.Result, error) {
	jobs := rh.rt.Jobs()
	res, err := jobs.Result(id)
	if err != nil {
		return nil, nil, err
	}
	v, err := jobs.Status(id)
	if err != nil {
		return nil, nil, err
	}
	return v.Params, res, nil
}
