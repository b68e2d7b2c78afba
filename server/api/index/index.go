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

// Package index 服務根路徑：列出可用端點，並提供存活檢查。
package index

import (
	"encoding/json"
	"net/http"
)

// Endpoint 一個對外端點
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Desc   string `json:"desc"`
}

// Endpoints 根路徑回傳的端點清單
var Endpoints = []Endpoint{
	{"GET", "/v1/simulate", "synchronous simulation from query parameters or a preset"},
	{"POST", "/v1/simulate", "synchronous simulation from a JSON body"},
	{"POST", "/v1/legacy/simulate", "simulation with the legacy character/pull/cost payload"},
	{"GET", "/v1/ws/simulate", "websocket: start/cancel requests, receive progress and results"},
	{"POST", "/v1/jobs", "start a background simulation job"},
	{"GET", "/v1/jobs/{id}", "poll job progress"},
	{"GET", "/v1/jobs/{id}/result", "result of a finished job"},
	{"DELETE", "/v1/jobs/{id}", "cancel a job"},
	{"GET", "/v1/presets", "built-in parameter presets"},
	{"POST", "/v1/reports", "save a simulation report"},
	{"GET", "/v1/reports", "list saved reports"},
	{"GET", "/v1/reports/{id}", "get a saved report"},
	{"DELETE", "/v1/reports/{id}", "delete a saved report"},
	{"GET", "/v1/runtime", "runtime metrics"},
	{"GET", "/healthz", "liveness"},
}

func IndexHandlerFn(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(struct {
		Name      string     `json:"name"`
		Endpoints []Endpoint `json:"endpoints"`
	}{Name: "gachalab", Endpoints: Endpoints})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
