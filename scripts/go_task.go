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
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
)

var (
	info = color.New(color.FgGreen)
	warn = color.New(color.FgYellow)
	fail = color.New(color.FgRed)
)

// raceTargets 有 goroutine 互動的套件
var raceTargets = []string{".", "./cache/...", "./recorder/...", "./server/..."}

func runTest() error {
	info.Println("running tests")
	if err := cleanTestCache(); err != nil {
		return err
	}
	return goFiltered([]string{"test", "./...", "-cover", "-count=1"}, func(line string) bool {
		return strings.HasPrefix(line, "ok") || strings.HasPrefix(line, "FAIL")
	})
}

func runTestAll() error {
	info.Println("running tests (all with coverage)")
	if err := cleanTestCache(); err != nil {
		return err
	}
	return goRun("test", "./...", "-cover")
}

func runTestDetail() error {
	info.Println("running tests (detail)")
	if err := cleanTestCache(); err != nil {
		return err
	}
	return goFiltered([]string{"test", "./...", "-v", "-count=1"}, func(line string) bool {
		return !strings.Contains(line, "[no test files]")
	})
}

func runTestRace() error {
	info.Println("running tests (race)")
	return goRun(append([]string{"test", "-race", "-count=1"}, raceTargets...)...)
}

func runProfile() error {
	info.Println("profiling batch simulation (cpu)")
	return goRun("run", "./cmd/run", "-runs", "20000", "-worker", "4", "-p", "cpu")
}

func runServe() error {
	info.Println("serving on :5808")
	return goRun("run", "./cmd/svr", "-log-mode", "dev")
}

func cleanTestCache() error {
	if err := goRun("clean", "-testcache"); err != nil {
		return fmt.Errorf("go clean -testcache failed: %w", err)
	}
	return nil
}

func goRun(args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go %s finished with errors: %w", args[0], err)
	}
	return nil
}

// goFiltered 合併 stdout/stderr（編譯錯誤在 stderr），只印 keep 為真的行，ok 綠色、FAIL 紅色。
func goFiltered(args []string, keep func(string) bool) error {
	cmd := exec.Command("go", args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return err
	}
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		line := sc.Text()
		if !keep(line) {
			continue
		}
		switch {
		case strings.HasPrefix(line, "ok"):
			info.Println(line)
		case strings.HasPrefix(line, "FAIL"):
			fail.Println(line)
		default:
			fmt.Println(line)
		}
	}
	if err := sc.Err(); err != nil {
		warn.Printf("scanner error: %v\n", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("go %s finished with errors: %w", args[0], err)
	}
	return nil
}
