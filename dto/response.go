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

package dto

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

// WarningHeader 結果有附帶警告（例如觸頂）時設定的回應標頭
const WarningHeader = "X-Gachalab-Warning"

// SimulateResponse 同步模擬的回應
type SimulateResponse struct {
	Params  *spec.Params  `json:"params"`
	Result  *stats.Result `json:"result"`
	Warning string        `json:"warning,omitempty"`
}

func NewSimulateResponse(p *spec.Params, r *stats.Result) SimulateResponse {
	return SimulateResponse{Params: p, Result: r, Warning: Warning(p, r)}
}

// Warning 觸頂結束時回傳說明，其他狀態回傳空字串。
func Warning(p *spec.Params, r *stats.Result) string {
	if r == nil || r.Status != spec.StatusExhausted || r.Summary == nil {
		return ""
	}
	msg := fmt.Sprintf("targets not reached within %d draws", r.Summary.Draws)
	if p != nil {
		if zw := p.ZeroWeightTargets(); len(zw) > 0 {
			msg += fmt.Sprintf("; zero-weight targets can never be collected: %s", strings.Join(zw, ", "))
		}
	}
	return msg
}

// PresetView 列出方案用
type PresetView struct {
	Name   string       `json:"name"`
	Params *spec.Params `json:"params"`
}

func NewPresetViews(ps *spec.Presets) []PresetView {
	out := make([]PresetView, 0, len(ps.Names))
	for _, name := range ps.Names {
		p, _ := ps.Get(name)
		out = append(out, PresetView{Name: name, Params: p})
	}
	return out
}

// JobCreated 建立 job 的回應
type JobCreated struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Seed  int64  `json:"seed"`
}

// ReportRequest 保存報告的請求。
//
// 結果來源二擇一：JobID 指向已完成的 job；否則以 Params（或 Preset）當場模擬。
type ReportRequest struct {
	Title       string
	Description string
	Public      bool
	JobID       string
	Simulate    SimulateRequest
}

// DecodeReportRequest 解碼保存報告的 JSON body。
func DecodeReportRequest(raw []byte) (*ReportRequest, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errs.NewWarn("invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errs.NewWarn("request must be a json object")
	}
	req := new(ReportRequest)
	var problems []string
	str := func(v gjson.Result, field string) string {
		if v.Type != gjson.String {
			problems = append(problems, field+" must be a string")
		}
		return v.String()
	}
	root.ForEach(func(key, value gjson.Result) bool {
		switch k := key.String(); k {
		case "title":
			req.Title = str(value, k)
		case "description":
			req.Description = str(value, k)
		case "public":
			if !value.IsBool() {
				problems = append(problems, "public must be a boolean")
			}
			req.Public = value.Bool()
		case "jobId":
			req.JobID = str(value, k)
		case "preset":
			req.Simulate.Preset = str(value, k)
		case "seed":
			req.Simulate.Seed = value.Int()
		case "params":
			p, err := ParseParams(value)
			if err != nil {
				problems = append(problems, err.Error())
				break
			}
			req.Simulate.Params = p
		default:
			problems = append(problems, fmt.Sprintf("unknown field %q", k))
		}
		return true
	})
	if len(problems) > 0 {
		return nil, errs.NewWarn("invalid report request: " + strings.Join(problems, "; "))
	}
	return req, nil
}
