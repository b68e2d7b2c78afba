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

package spec

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/zintix-labs/gachalab/errs"
	"gopkg.in/yaml.v3"
)

//go:embed presets/presets.yaml
var builtinPresets []byte

// DefaultPresetName 內建預設方案名稱
const DefaultPresetName = "default"

// Presets 以名稱索引的參數方案，Names 保留檔案中的宣告順序。
type Presets struct {
	Names []string
	byKey map[string]*Params
}

// Get 取得方案的副本，避免呼叫端改動共用資料。
func (ps *Presets) Get(name string) (*Params, bool) {
	if ps == nil {
		return nil, false
	}
	p, ok := ps.byKey[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// presetDoc 單一方案的 YAML 形狀。targets / weights 保留為 Node 以取得鍵的順序。
type presetDoc struct {
	Targets        yaml.Node `yaml:"targets"`
	Weights        yaml.Node `yaml:"weights"`
	DrawSize       int       `yaml:"draw_size"`
	CostPerDraw    float64   `yaml:"cost_per_draw"`
	ConversionRate float64   `yaml:"conversion_rate"`
}

// BuiltinPresets 解析內建方案。內建檔案壞掉屬於程式錯誤，因此直接 panic。
func BuiltinPresets() *Presets {
	ps, err := LoadPresets(builtinPresets)
	if err != nil {
		panic(err)
	}
	return ps
}

// DefaultParams 回傳內建 default 方案的副本。
func DefaultParams() *Params {
	p, _ := BuiltinPresets().Get(DefaultPresetName)
	return p
}

// LoadPresets 嚴格解析 YAML 方案檔。
//
// 兩段式解析：
//  1. KnownFields(true) 嚴格解碼，多寫或拼錯欄位直接報錯。
//  2. 以 yaml.Node 走訪，取得方案名稱與 targets / weights 的宣告順序。
//
// 每個方案都會經過 Validate，錯誤沿用 ErrInvalidDistribution。
func LoadPresets(raw []byte) (*Presets, error) {
	var strict struct {
		Presets map[string]presetDoc `yaml:"presets"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&strict); err != nil {
		return nil, errs.Wrap(errs.NewWarn(err.Error()), "spec.preset : decode failed")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, errs.Wrap(errs.NewWarn(err.Error()), "spec.preset : parse failed")
	}
	names := presetNames(&root)

	ps := &Presets{Names: names, byKey: make(map[string]*Params, len(names))}
	for _, name := range names {
		doc := strict.Presets[name]
		p, err := doc.params()
		if err != nil {
			return nil, errs.Wrapf(err, "spec.preset : preset %q", name)
		}
		if err := p.Validate(); err != nil {
			return nil, errs.Wrapf(err, "spec.preset : preset %q", name)
		}
		ps.byKey[name] = p
	}
	return ps, nil
}

// presetNames 取出 presets 映射下的鍵（依宣告順序）。
func presetNames(root *yaml.Node) []string {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "presets" {
			continue
		}
		m := doc.Content[i+1]
		if m.Kind != yaml.MappingNode {
			return nil
		}
		out := make([]string, 0, len(m.Content)/2)
		for j := 0; j+1 < len(m.Content); j += 2 {
			out = append(out, m.Content[j].Value)
		}
		return out
	}
	return nil
}

func (d *presetDoc) params() (*Params, error) {
	p := &Params{
		DrawSize:       d.DrawSize,
		CostPerDraw:    d.CostPerDraw,
		ConversionRate: d.ConversionRate,
	}
	err := walkMapping(&d.Targets, "targets", func(k string, v *yaml.Node) error {
		var n int
		if err := v.Decode(&n); err != nil {
			return err
		}
		p.Targets = append(p.Targets, Target{Name: k, Count: n})
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = walkMapping(&d.Weights, "weights", func(k string, v *yaml.Node) error {
		var f float64
		if err := v.Decode(&f); err != nil {
			return err
		}
		p.Weights = append(p.Weights, Weight{Name: k, Value: f})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func walkMapping(n *yaml.Node, field string, fn func(k string, v *yaml.Node) error) error {
	if n.Kind == 0 {
		return nil // 欄位未提供，交給 Validate 判斷
	}
	if n.Kind != yaml.MappingNode {
		return errs.NewWarn(fmt.Sprintf("%s must be a mapping", field))
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		if err := fn(k, n.Content[i+1]); err != nil {
			return errs.Wrap(errs.NewWarn(err.Error()), fmt.Sprintf("%s.%s", field, k))
		}
	}
	return nil
}
