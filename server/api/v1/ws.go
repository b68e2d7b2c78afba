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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/dto"
	"github.com/zintix-labs/gachalab/server/svrcfg"
	"github.com/zintix-labs/gachalab/spec"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// MsgAccepted 請求已排入 Worker，回傳實際使用的請求 ID
const MsgAccepted gachalab.MessageType = "accepted"

// WsHandler 訊息式擺放：一條 websocket 對應一個 Worker。
//
// 客戶端訊息：
//
//	{"type":"start","id":"可省略","request":{ 與 POST /v1/simulate 相同 }}
//	{"type":"cancel","id":"..."}
//
// 伺服器訊息即 gachalab.Message：ready / accepted / progress / complete / error。
// progress 在緩衝滿時會被丟棄，complete 與 error 一定送達。
type WsHandler struct {
	rt       *gachalab.Runtime
	presets  *spec.Presets
	log      *slog.Logger
	buf      int
	upgrader websocket.Upgrader
}

func NewWsHandler(sCfg *svrcfg.SvrCfg) (*WsHandler, error) {
	if sCfg == nil || sCfg.Runtime == nil || sCfg.Presets == nil {
		return nil, errs.NewFatal("ws handler: runtime and presets are required")
	}
	return &WsHandler{
		rt:      sCfg.Runtime,
		presets: sCfg.Presets,
		log:     sCfg.Log,
		buf:     sCfg.WsBufSize,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: wsWriteWait,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}, nil
}

func (wh *WsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	conn, err := wh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已寫回錯誤回應
		wh.log.Debug("v1.ws: upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	worker, err := wh.rt.NewWorker(ctx, wh.buf)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(gachalab.Message{Type: gachalab.MsgError, Error: err.Error()})
		return
	}

	replies := make(chan gachalab.Message, wh.buf)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		wh.writePump(conn, worker.Messages(), replies)
	}()

	wh.readPump(ctx, conn, worker, replies)

	// 讀取端結束：停止模擬並關閉 Messages，寫出端隨之結束
	cancel()
	wh.rt.ReleaseWorker(worker)
	<-pumped
}

// readPump 讀取客戶端訊息直到連線關閉或讀取逾時。
func (wh *WsHandler) readPump(ctx context.Context, conn *websocket.Conn, worker *gachalab.Worker, replies chan<- gachalab.Message) {
	conn.SetReadLimit(dto.MaxBody)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wh.log.Debug("v1.ws: read failed", slog.Any("err", err))
			}
			return
		}
		if m, ok := wh.dispatch(ctx, worker, raw); ok {
			select {
			case replies <- m:
			default:
				wh.log.Warn("v1.ws: reply dropped", slog.String("type", string(m.Type)), slog.String("id", m.ID))
			}
		}
	}
}

// dispatch 處理單則客戶端訊息，回傳需要直接回覆的訊息。
func (wh *WsHandler) dispatch(ctx context.Context, worker *gachalab.Worker, raw []byte) (gachalab.Message, bool) {
	if !gjson.ValidBytes(raw) {
		return errMessage("", errs.NewWarn("invalid json")), true
	}
	root := gjson.ParseBytes(raw)
	id := root.Get("id").String()

	switch typ := root.Get("type").String(); typ {
	case "start":
		body := root.Get("request").Raw
		if body == "" {
			body = "{}"
		}
		req, err := dto.DecodeSimulateJSON([]byte(body))
		if err != nil {
			return errMessage(id, err), true
		}
		p, err := req.Resolve(wh.presets)
		if err != nil {
			return errMessage(id, err), true
		}
		// 參數無效直接回覆，不排入 Worker
		if err := p.Validate(); err != nil {
			return errMessage(id, err), true
		}
		sid, err := worker.Submit(ctx, gachalab.Request{ID: id, Params: p, Seed: req.Seed})
		if err != nil {
			return errMessage(id, err), true
		}
		return gachalab.Message{Type: MsgAccepted, ID: sid}, true
	case "cancel":
		if !worker.Cancel(id) {
			return errMessage(id, errs.NewMissing("request not found or already finished")), true
		}
		return gachalab.Message{}, false
	default:
		return errMessage(id, errs.Warnf("unknown message type %q (want start|cancel)", typ)), true
	}
}

// writePump 是連線唯一的寫入者：轉發 Worker 訊息與直接回覆，並定期 ping。
func (wh *WsHandler) writePump(conn *websocket.Conn, msgs <-chan gachalab.Message, replies <-chan gachalab.Message) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		var m gachalab.Message
		select {
		case v, ok := <-msgs:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			m = v
		case m = <-replies:
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				wh.drain(msgs)
				return
			}
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			wh.log.Error("v1.ws: encode failed", slog.Any("err", err))
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			wh.drain(msgs)
			return
		}
	}
}

// drain 寫入失敗後仍需讀完 Messages，Worker 才能順利關閉。
func (wh *WsHandler) drain(msgs <-chan gachalab.Message) {
	for range msgs {
	}
}

func errMessage(id string, err error) gachalab.Message {
	return gachalab.Message{
		Type:    gachalab.MsgError,
		ID:      id,
		Error:   err.Error(),
		Invalid: errors.Is(err, spec.ErrInvalidDistribution),
	}
}
