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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/server/logger"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cfg *config = new(config)

type config struct {
	preset    string
	presets   string // 自訂方案檔
	worker    int
	runs      int
	seed      int64
	maxDraws  int
	history   bool
	budget    int
	format    string
	logMode   string
	pprofmode string
}

func bindVar() {
	flag.StringVar(&cfg.preset, "preset", spec.DefaultPresetName, "preset name")
	flag.StringVar(&cfg.presets, "config", "", "presets yaml file (default: built-in presets)")
	flag.IntVar(&cfg.worker, "worker", 1, "number of workers")
	flag.IntVar(&cfg.runs, "runs", 1, "number of simulations; > 1 prints a batch report")
	flag.Int64Var(&cfg.seed, "seed", -1, "int64 seed for random number generator")
	flag.IntVar(&cfg.maxDraws, "max", 0, "draw ceiling per simulation (default 10000)")
	flag.BoolVar(&cfg.history, "history", false, "keep per-item history in results")
	flag.IntVar(&cfg.budget, "budget", 0, "with -runs > 1: probability of finishing within this many draws")
	flag.StringVar(&cfg.format, "format", "", "output format: '' (table), json, yaml")
	flag.StringVar(&cfg.logMode, "log", "silence", "log mode: dev|prod|silence")
	flag.StringVar(&cfg.pprofmode, "p", "", "pprof: '', cpu, heap, allocs")

	flag.Parse()
}

// 這裡解析並分支要執行的模擬
func executeSimulator() error {
	cfg.valid()

	presets, err := loadPresets(cfg.presets)
	if err != nil {
		return err
	}
	params, ok := presets.Get(cfg.preset)
	if !ok {
		return fmt.Errorf("unknown preset %q (have %v)", cfg.preset, presets.Names)
	}
	mode, err := logger.ParseMode(cfg.logMode)
	if err != nil {
		return err
	}
	lg, ah := logger.NewAsync(1024, mode)
	defer ah.Close()

	labCfg := gachalab.DefaultConfig()
	labCfg.Engine.MaxDraws = cfg.maxDraws
	labCfg.Engine.KeepHistory = cfg.history
	lab, err := gachalab.New(labCfg, gachalab.WithLogger(lg))
	if err != nil {
		return err
	}
	var s *gachalab.Simulator
	if cfg.seed > 0 {
		s, err = lab.NewSimulatorWithSeed(params, cfg.seed)
	} else {
		s, err = lab.NewSimulator(params)
	}
	if err != nil {
		return err
	}

	// 至此確保可執行
	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)
	rep, batchRep, _ := stats.RenderOf(cfg.format)
	showpb := cfg.format == ""

	if cfg.runs == 1 {
		if showpb {
			p.Printf("%s[PRESET:%s] [SEED:%d] [CEILING:%d]%s\n", green, cfg.preset, s.Seed(), lab.Config().Engine.MaxDraws, reset)
		}
		res, used, err := s.Sim(showpb)
		if err != nil {
			return err
		}
		if rep != nil {
			return res.WriteWith(os.Stdout, rep)
		}
		res.StdOut(used)
		return nil
	}

	if showpb {
		p.Printf("%s[WORKERS:%d] [PRESET:%s] [RUNS:%d] [SEED:%d]%s\n", green, cfg.worker, cfg.preset, cfg.runs, s.Seed(), reset)
	}
	br, _, used, err := s.Batch(cfg.runs, cfg.worker, showpb)
	if err != nil {
		return err
	}
	if batchRep != nil {
		return batchRep.Write(os.Stdout, br)
	}
	p.Printf("used: %v\n", used)
	br.Out()
	if cfg.budget > 0 {
		ps := br.ProbWithin(cfg.budget)
		p.Printf("P(finish within %d draws) = %.2f%% [%.2f%%, %.2f%%]\n", cfg.budget, 100*ps.Hat, 100*ps.CI.Lo, 100*ps.CI.Hi)
	}
	return nil
}

func loadPresets(path string) (*spec.Presets, error) {
	if path == "" {
		return spec.BuiltinPresets(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return spec.LoadPresets(raw)
}

func (cfg *config) valid() {
	p := message.NewPrinter(language.English)

	if cfg.worker < 1 {
		log.Fatal("value err : workers must > 0")
	}
	if cfg.runs < 1 {
		log.Fatal("value err : runs must > 0")
	}
	// 批次模擬保留逐物品紀錄沒有意義，只會吃記憶體
	if cfg.runs > 1 && cfg.history {
		p.Printf("history is ignored for batch runs\n")
		cfg.history = false
	}
	if cfg.runs > 1_000_000 {
		p.Printf("too many runs: %d resized to 1M runs\n", cfg.runs)
		cfg.runs = 1_000_000
	}
	if cfg.format != "" {
		if _, _, ok := stats.RenderOf(cfg.format); !ok {
			log.Fatalf("value err : unknown format %q", cfg.format)
		}
	}
}
