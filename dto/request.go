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

// Package dto 負責傳輸層的編解碼：HTTP 請求轉成 spec.Params，結果轉成回應封包。
//
// 映射欄位（targetCounts / categoryWeights）的鍵順序就是加權抽樣的宣告順序，
// encoding/json 解成 map 會丟失順序，因此這裡用 gjson 依原文順序走訪。
package dto

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
)

// MaxBody POST body 上限（1MiB）
const MaxBody = 1 << 20

// SimulateRequest 一次模擬請求
//
// Params 為 nil 表示請求沒有帶任何參數欄位，由 Resolve 改用 Preset（或內建 default）。
type SimulateRequest struct {
	Preset string
	Params *spec.Params
	Seed   int64
}

var paramFields = map[string]bool{
	"targetCounts":       true,
	"drawSize":           true,
	"categoryWeights":    true,
	"costPerDraw":        true,
	"costConversionRate": true,
}

// DecodeSimulateRequest 把 HTTP 請求解碼成 SimulateRequest。
//
// 支援：
//   - GET：query string。映射以 "name:value" 逗號串列表示，例如
//     targetCounts=rare:2,epic:1&categoryWeights=rare:80,epic:20&drawSize=1&costPerDraw=160&costConversionRate=0.0099
//   - POST：JSON body，參數放在 "params" 物件（形狀同 spec.Params 的 JSON），或直接攤平在最上層，
//     兩者不可混用；另可帶 seed 與 preset。未知欄位直接拒絕。
//
// 這裡只做解碼與型別轉換，參數是否合法由 spec.Params.Validate 決定。
func DecodeSimulateRequest(r *http.Request) (*SimulateRequest, error) {
	if r == nil {
		return nil, errs.NewWarn("nil request")
	}
	switch r.Method {
	case http.MethodGet:
		return decodeQuery(r)
	case http.MethodPost:
		raw, err := ReadBody(r)
		if err != nil {
			return nil, err
		}
		return DecodeSimulateJSON(raw)
	default:
		return nil, errs.NewWarn("method not allowed")
	}
}

// ReadBody 讀取受大小限制的 body，超過 MaxBody 直接拒絕。
func ReadBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBody+1))
	if err != nil {
		return nil, errs.Wrap(errs.NewWarn(err.Error()), "read body failed")
	}
	if len(raw) > MaxBody {
		return nil, errs.NewWarn("request body too large")
	}
	return raw, nil
}

// DecodeSimulateJSON 解碼 JSON 請求（HTTP POST、websocket、lambda 共用）。
func DecodeSimulateJSON(raw []byte) (*SimulateRequest, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errs.NewWarn("invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errs.NewWarn("request must be a json object")
	}

	req := new(SimulateRequest)
	hasParams := false
	var nested gjson.Result
	var problems []string
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch {
		case k == "seed":
			seed, err := strconv.ParseInt(value.Raw, 10, 64)
			if value.Type != gjson.Number || err != nil {
				problems = append(problems, "seed must be an integer")
			}
			req.Seed = seed
		case k == "preset":
			if value.Type != gjson.String {
				problems = append(problems, "preset must be a string")
			}
			req.Preset = value.String()
		case k == "params":
			if !value.IsObject() {
				problems = append(problems, "params must be an object")
			}
			nested = value
		case paramFields[k]:
			hasParams = true
		default:
			problems = append(problems, fmt.Sprintf("unknown field %q", k))
		}
		return true
	})
	if hasParams && nested.Exists() {
		problems = append(problems, "params cannot be mixed with top-level parameter fields")
	}
	if len(problems) > 0 {
		return nil, errs.NewWarn("invalid request: " + strings.Join(problems, "; "))
	}
	if nested.Exists() {
		p, err := ParseParams(nested)
		if err != nil {
			return nil, err
		}
		req.Params = p
	}
	if hasParams {
		p, err := ParseParams(root)
		if err != nil {
			return nil, err
		}
		req.Params = p
	}
	return req, nil
}

// ParseParams 從 JSON 物件取出參數，映射欄位保留宣告順序。缺少的欄位保持零值。
func ParseParams(root gjson.Result) (*spec.Params, error) {
	p := new(spec.Params)
	var problems []string
	fail := func(field string, err error) {
		problems = append(problems, field+": "+err.Error())
	}

	if err := eachNumber(root.Get("targetCounts"), func(name string, v gjson.Result) error {
		n, err := intOf(v)
		if err != nil {
			return err
		}
		p.Targets = append(p.Targets, spec.Target{Name: name, Count: n})
		return nil
	}); err != nil {
		fail("targetCounts", err)
	}
	if err := eachNumber(root.Get("categoryWeights"), func(name string, v gjson.Result) error {
		p.Weights = append(p.Weights, spec.Weight{Name: name, Value: v.Float()})
		return nil
	}); err != nil {
		fail("categoryWeights", err)
	}
	if v := root.Get("drawSize"); v.Exists() {
		n, err := intOf(v)
		if err != nil {
			fail("drawSize", err)
		}
		p.DrawSize = n
	}
	if v := root.Get("costPerDraw"); v.Exists() {
		f, err := floatOf(v)
		if err != nil {
			fail("costPerDraw", err)
		}
		p.CostPerDraw = f
	}
	if v := root.Get("costConversionRate"); v.Exists() {
		f, err := floatOf(v)
		if err != nil {
			fail("costConversionRate", err)
		}
		p.ConversionRate = f
	}
	if len(problems) > 0 {
		return nil, errs.Wrap(spec.ErrInvalidDistribution, strings.Join(problems, "; "))
	}
	return p, nil
}

// Resolve 決定最終參數：請求帶了參數就用參數，否則用指定方案，都沒有則用 default。
func (req *SimulateRequest) Resolve(ps *spec.Presets) (*spec.Params, error) {
	if req.Params != nil {
		return req.Params, nil
	}
	name := req.Preset
	if name == "" {
		name = spec.DefaultPresetName
	}
	p, ok := ps.Get(name)
	if !ok {
		return nil, errs.NewMissing(fmt.Sprintf("unknown preset %q", name))
	}
	return p, nil
}

func decodeQuery(r *http.Request) (*SimulateRequest, error) {
	q := r.URL.Query()
	req := &SimulateRequest{Preset: q.Get("preset")}
	var problems []string

	if s := q.Get("seed"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid seed: %v", err))
		}
		req.Seed = v
	}

	has := false
	for k := range paramFields {
		if q.Has(k) {
			has = true
		}
	}
	if has {
		p := new(spec.Params)
		if s := q.Get("targetCounts"); s != "" {
			err := eachPair(s, func(name, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil {
					return err
				}
				p.Targets = append(p.Targets, spec.Target{Name: name, Count: n})
				return nil
			})
			if err != nil {
				problems = append(problems, "targetCounts: "+err.Error())
			}
		}
		if s := q.Get("categoryWeights"); s != "" {
			err := eachPair(s, func(name, v string) error {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return err
				}
				p.Weights = append(p.Weights, spec.Weight{Name: name, Value: f})
				return nil
			})
			if err != nil {
				problems = append(problems, "categoryWeights: "+err.Error())
			}
		}
		if s := q.Get("drawSize"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				problems = append(problems, fmt.Sprintf("invalid drawSize: %v", err))
			}
			p.DrawSize = v
		}
		if s := q.Get("costPerDraw"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("invalid costPerDraw: %v", err))
			}
			p.CostPerDraw = v
		}
		if s := q.Get("costConversionRate"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("invalid costConversionRate: %v", err))
			}
			p.ConversionRate = v
		}
		req.Params = p
	}
	if len(problems) > 0 {
		return nil, errs.Wrap(spec.ErrInvalidDistribution, strings.Join(problems, "; "))
	}
	return req, nil
}

// eachPair 走訪 "a:1,b:2"；名稱不可為空。
func eachPair(s string, fn func(name, v string) error) error {
	for item := range strings.SplitSeq(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, v, ok := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("expect name:value, got %q", item)
		}
		if err := fn(name, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// eachNumber 依宣告順序走訪 JSON 物件，值必須是數字。欄位不存在時不做事。
func eachNumber(obj gjson.Result, fn func(name string, v gjson.Result) error) error {
	if !obj.Exists() {
		return nil
	}
	if !obj.IsObject() {
		return fmt.Errorf("must be an object")
	}
	var err error
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			err = fmt.Errorf("%s: must be a number", key.String())
			return false
		}
		if e := fn(key.String(), value); e != nil {
			err = fmt.Errorf("%s: %w", key.String(), e)
			return false
		}
		return true
	})
	return err
}

func floatOf(v gjson.Result) (float64, error) {
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("must be a number")
	}
	return v.Float(), nil
}

// intOf 只接受整數值的數字，例如 2 或 2.0，拒絕 2.5。
func intOf(v gjson.Result) (int, error) {
	f, err := floatOf(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("must be an integer, got %v", v.Raw)
	}
	return int(v.Int()), nil
}
