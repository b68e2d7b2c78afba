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

// 開發用任務：go run ./scripts <task>
package main

import (
	"fmt"
	"os"
	"sort"
)

type task struct {
	desc string
	run  func() error
}

var tasks = map[string]task{
	"test":        {"go test ./... (只顯示 ok/FAIL)", runTest},
	"test-all":    {"go test ./... -cover", runTestAll},
	"test-detail": {"go test ./... -v，略過沒有測試的套件", runTestDetail},
	"test-race":   {"併發相關套件跑 -race（worker / jobs / cache / 伺服器）", runTestRace},
	"profile":     {"cmd/run 批次模擬並輸出 cpu profile 到 build/profiling", runProfile},
	"serve":       {"以 dev 日誌啟動 HTTP 伺服器", runServe},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	t, ok := tasks[os.Args[1]]
	if !ok {
		warn.Printf("Unknown task: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err := t.run(); err != nil {
		fail.Println(err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: go run ./scripts [task]")
	names := make([]string, 0, len(tasks))
	for n := range tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  %-12s %s\n", n, tasks[n].desc)
	}
}
