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

package api

import (
	"log/slog"

	"github.com/zintix-labs/gachalab/server/api/index"
	v1 "github.com/zintix-labs/gachalab/server/api/v1"
	"github.com/zintix-labs/gachalab/server/netsvr"
	"github.com/zintix-labs/gachalab/server/netsvr/middleware"
	"github.com/zintix-labs/gachalab/server/svrcfg"
)

// RegisterRoutes 註冊 middleware 與所有路由。sCfg 需已通過 Valid。
func RegisterRoutes(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	registerMiddleware(svr, sCfg.Log) // 1. middleware
	registerIndex(svr)                // 2. 主頁與存活檢查
	return registerV1API(svr, sCfg)   // 3. v1 api
}

func registerMiddleware(svr netsvr.NetSvr, log *slog.Logger) {
	svr.Use(middleware.RequestID)
	svr.Use(middleware.AccessLog(log))
	svr.Use(middleware.Recover(log))
	svr.Use(middleware.Compression)
}

func registerIndex(svr netsvr.NetSvr) {
	svr.Get("/", index.IndexHandlerFn)
	svr.Get("/healthz", index.Healthz)
}

func registerV1API(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	s, err := v1.NewSimHandler(sCfg)
	if err != nil {
		return err
	}
	j, err := v1.NewJobHandler(sCfg)
	if err != nil {
		return err
	}
	ws, err := v1.NewWsHandler(sCfg)
	if err != nil {
		return err
	}
	rp, err := v1.NewReportHandler(sCfg, s)
	if err != nil {
		return err
	}
	svr.Group("/v1", func(vOne netsvr.NetRouter) {
		vOne.Get("/simulate", s.Simulate)
		vOne.Post("/simulate", s.Simulate)
		vOne.Post("/legacy/simulate", s.Legacy)
		vOne.Get("/presets", s.Presets)
		vOne.Get("/runtime", s.Metrics)

		vOne.Get("/ws/simulate", ws.Simulate)

		vOne.Post("/jobs", j.Start)
		vOne.Get("/jobs/{id}", j.Status)
		vOne.Get("/jobs/{id}/result", j.Result)
		vOne.Delete("/jobs/{id}", j.Cancel)

		vOne.Post("/reports", rp.Create)
		vOne.Get("/reports", rp.List)
		vOne.Get("/reports/{id}", rp.Get)
		vOne.Delete("/reports/{id}", rp.Delete)
	})
	return nil
}
