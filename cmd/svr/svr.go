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
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/server"
	"github.com/zintix-labs/gachalab/server/logger"
	"github.com/zintix-labs/gachalab/server/svrcfg"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/store"
)

// 設定來源優先序：旗標 > 環境變數（含 .env）> 預設值。
//
//	GACHALAB_ADDR         監聽位址（:5808）
//	GACHALAB_LOG_MODE     dev | prod | silence
//	GACHALAB_LAB_CONFIG   Lab 設定 YAML（抽數上限、快取大小、job 保留時間）
//	GACHALAB_PRESETS      方案 YAML（預設使用內建方案）
//	GACHALAB_REPORT_DSN   Postgres DSN，報告存進資料庫
//	GACHALAB_REPORT_DIR   報告以 zstd 壓縮檔存進目錄（DSN 未設定時才使用）
//	GACHALAB_SIM_TIMEOUT  同步模擬的期限（30s）
func main() {
	_ = godotenv.Load()

	sCfg, ah, err := loadConfigFromFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ah.Close()
	if err := server.Run(sCfg); err != nil {
		ah.Close()
		os.Exit(1)
	}
}

type config struct {
	Addr       string
	LogMode    string
	LabConfig  string
	Presets    string
	ReportDSN  string
	ReportDir  string
	SimTimeout time.Duration
	WsBuf      int
}

func loadConfigFromFlags() (*svrcfg.SvrCfg, *logger.AsyncHandler, error) {
	cfg := new(config)
	flag.StringVar(&cfg.Addr, "addr", env("GACHALAB_ADDR", ":5808"), "listen address")
	flag.StringVar(&cfg.LogMode, "log-mode", env("GACHALAB_LOG_MODE", "dev"), "log mode: dev|prod|silence")
	flag.StringVar(&cfg.LabConfig, "lab-config", env("GACHALAB_LAB_CONFIG", ""), "lab config yaml")
	flag.StringVar(&cfg.Presets, "presets", env("GACHALAB_PRESETS", ""), "presets yaml (default: built-in)")
	flag.StringVar(&cfg.ReportDSN, "report-dsn", env("GACHALAB_REPORT_DSN", ""), "postgres dsn for saved reports")
	flag.StringVar(&cfg.ReportDir, "report-dir", env("GACHALAB_REPORT_DIR", ""), "directory for saved reports")
	flag.DurationVar(&cfg.SimTimeout, "sim-timeout", envDuration("GACHALAB_SIM_TIMEOUT", 30*time.Second), "synchronous simulation timeout")
	flag.IntVar(&cfg.WsBuf, "ws-buf", 64, "websocket message buffer per connection")
	flag.Parse()

	mode, err := logger.ParseMode(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	log, ah := logger.NewAsync(4096, mode)

	labCfg := gachalab.DefaultConfig()
	if cfg.LabConfig != "" {
		raw, err := os.ReadFile(cfg.LabConfig)
		if err != nil {
			return nil, ah, err
		}
		if labCfg, err = gachalab.LoadConfig(raw); err != nil {
			return nil, ah, err
		}
	}
	lab, err := gachalab.New(labCfg, gachalab.WithLogger(log))
	if err != nil {
		return nil, ah, err
	}

	presets := spec.BuiltinPresets()
	if cfg.Presets != "" {
		raw, err := os.ReadFile(cfg.Presets)
		if err != nil {
			return nil, ah, err
		}
		if presets, err = spec.LoadPresets(raw); err != nil {
			return nil, ah, err
		}
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return nil, ah, err
	}

	return &svrcfg.SvrCfg{
		Log:        log,
		Addr:       cfg.Addr,
		Lab:        lab,
		Presets:    presets,
		Store:      st,
		WsBufSize:  cfg.WsBuf,
		SimTimeout: cfg.SimTimeout,
	}, ah, nil
}

func openStore(cfg *config, log *slog.Logger) (store.ReportStore, error) {
	switch {
	case cfg.ReportDSN != "":
		db, err := store.OpenPostgres(cfg.ReportDSN, log)
		if err != nil {
			return nil, err
		}
		log.Info("[gachalab] reports stored in postgres")
		return store.NewGormStore(db, true)
	case cfg.ReportDir != "":
		log.Info("[gachalab] reports stored in " + cfg.ReportDir)
		return store.NewFileStore(cfg.ReportDir)
	default:
		log.Info("[gachalab] reports kept in memory")
		return store.NewMemStore(), nil
	}
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := env(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s=%q, using %v\n", key, v, def)
		return def
	}
	return d
}
