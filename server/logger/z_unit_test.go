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

package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuf) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]LogMode{"": ModeDev, "dev": ModeDev, " PROD ": ModeProd, "silence": ModeSilence} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("loud"); err == nil {
		t.Fatalf("unknown mode accepted")
	}
	if ModeProd.String() != "prod" || LogMode(9).String() != "unknown" {
		t.Fatalf("String mismatch")
	}
}

func TestAsyncDrainsOnClose(t *testing.T) {
	buf := new(lockedBuf)
	log, ah := NewAsyncTo(buf, 64, ModeProd)
	for i := range 10 {
		log.Info("sim.done", slog.Int("i", i))
	}
	ah.Close()
	out := buf.String()
	if n := strings.Count(out, `"msg":"sim.done"`); n != 10 {
		t.Fatalf("got %d records, want 10:\n%s", n, out)
	}
	if !strings.Contains(out, `"app":"gachalab"`) {
		t.Fatalf("missing app attr: %s", out)
	}

	log.Info("after close")
	if ah.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", ah.Dropped())
	}
	ah.Close()
}

func TestAsyncRespectsLevel(t *testing.T) {
	buf := new(lockedBuf)
	log, ah := NewAsyncTo(buf, 8, ModeProd)
	log.Debug("hidden")
	log.Warn("shown")
	ah.Close()
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("out = %s", out)
	}
}
