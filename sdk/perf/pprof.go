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

// Package perf 以 runtime/pprof 包裝一段工作，輸出 CPU / heap / allocs profile。
//
// 輸出檔可用 go tool pprof 分析，CPU profile 也可直接當作 PGO 的 default.pgo。
package perf

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/zintix-labs/gachalab/errs"
)

// DefaultDir profile 預設寫入路徑
const DefaultDir = "build/profiling"

// Modes 支援的模式；空字串代表不做 profiling
var Modes = []string{"cpu", "heap", "allocs"}

// RunPProf 依 mode 執行 exe 並寫出對應 profile 到 dir（空白時使用 DefaultDir）。
// exe 的錯誤優先回傳；profile 寫入失敗回傳 Fatal。
func RunPProf(exe func() error, mode string, dir string) error {
	if dir == "" {
		dir = DefaultDir
	}
	switch mode {
	case "":
		return exe()
	case "cpu":
		return PProfCPU(exe, dir)
	case "heap":
		return snapshot(exe, dir, "heap")
	case "allocs":
		return snapshot(exe, dir, "allocs")
	default:
		return errs.Warnf("unknown pprof mode %q (want cpu|heap|allocs)", mode)
	}
}

// PProfCPU 在 exe 執行期間開啟 CPU profiling，輸出 <dir>/cpu.pprof。
func PProfCPU(exe func() error, dir string) error {
	f, err := create(dir, "cpu")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		return errs.Wrap(err, "perf: start cpu profile")
	}
	defer pprof.StopCPUProfile()
	return exe()
}

// snapshot 在 exe 結束後寫出一次 heap（in-use）或 allocs（累積配置）快照。
// heap 前先 GC，讓快照貼近存活物件。
func snapshot(exe func() error, dir string, name string) error {
	if err := exe(); err != nil {
		return err
	}
	if name == "heap" {
		runtime.GC()
	}
	f, err := create(dir, name)
	if err != nil {
		return err
	}
	defer f.Close()
	prof := pprof.Lookup(name)
	if prof == nil {
		return errs.Fatalf("perf: profile %q not found", name)
	}
	if err := prof.WriteTo(f, 0); err != nil {
		return errs.Wrapf(err, "perf: write %s profile", name)
	}
	return nil
}

func create(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(err, "perf: create profile dir")
	}
	f, err := os.Create(filepath.Join(dir, name+".pprof"))
	if err != nil {
		return nil, errs.Wrapf(err, "perf: create %s.pprof", name)
	}
	return f, nil
}
