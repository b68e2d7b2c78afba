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

// Package server 組裝 gachalab 的 HTTP 服務：路由、middleware 與生命週期。
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/server/api"
	"github.com/zintix-labs/gachalab/server/app"
	"github.com/zintix-labs/gachalab/server/netsvr"
	"github.com/zintix-labs/gachalab/server/svrcfg"
)

// Run 組裝並啟動預設 server（chi，監聽 sCfg.Addr），阻塞直到收到終止信號。
//
// 依賴全部來自 sCfg；這裡不讀檔案也不讀環境變數。
// 關閉順序：HTTP server → runtime（取消 job 與 worker）→ 報告儲存。
func Run(sCfg *svrcfg.SvrCfg) error {
	if err := sCfg.Valid(); err != nil {
		// logger 可能不可用
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return RunWithSvr(sCfg, netsvr.NewChiServer(sCfg.Addr))
}

// RunWithSvr 同 Run，但由呼叫端注入 NetSvr（自訂位址、逾時或其他框架的 adapter）。
func RunWithSvr(sCfg *svrcfg.SvrCfg, svr netsvr.NetSvr) error {
	a, err := Build(sCfg, svr)
	if err != nil {
		return err
	}
	if c, ok := svr.(*netsvr.ChiAdapter); ok {
		sCfg.Log.Info("[gachalab] listening on http://localhost" + c.Address())
	}
	if err := a.Run(); err != nil {
		sCfg.Log.Error("app stopped", slog.Any("err", err))
		return err
	}
	return nil
}

// Build 驗證設定、註冊路由，回傳尚未啟動的 App。
func Build(sCfg *svrcfg.SvrCfg, svr netsvr.NetSvr) (*app.App, error) {
	if err := sCfg.Valid(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if svr == nil {
		err := errs.NewFatal("svr is required")
		sCfg.Log.Error(err.Error())
		return nil, err
	}
	if s, ok := svr.(*netsvr.ChiAdapter); ok && !s.Ready() {
		err := errs.NewFatal("default server is not ready")
		sCfg.Log.Error(err.Error())
		return nil, err
	}
	if err := api.RegisterRoutes(svr, sCfg); err != nil {
		sCfg.Log.Error("register routes failed", slog.Any("err", err))
		return nil, err
	}

	rt, st := sCfg.Runtime, sCfg.Store
	return app.NewWith(sCfg.Log,
		svr,
		app.OnShutdown("runtime", func(context.Context) error {
			rt.CloseWithReason("shutdown")
			return nil
		}),
		app.OnShutdown("store", func(context.Context) error {
			return st.Close()
		}),
	), nil
}
