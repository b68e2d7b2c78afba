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

package errs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zintix-labs/gachalab/errs"
)

func TestWrapKeepsLevel(t *testing.T) {
	base := errs.NewMissing("report not found")
	err := errs.Wrapf(base, "report %q", "abc")
	if errs.Level(err) != errs.Missing {
		t.Fatalf("level = %s, want missing", errs.Level(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is lost the cause")
	}
	if !strings.Contains(err.Error(), "cause:") {
		t.Fatalf("message = %s", err.Error())
	}
}

func TestForeignErrorsAreFatal(t *testing.T) {
	err := errs.Wrap(context.Canceled, "simulate")
	if errs.Level(err) != errs.Fatal {
		t.Fatalf("level = %s, want fatal", errs.Level(err))
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("errors.Is(context.Canceled) = false")
	}
	if errs.Level(nil) != errs.None {
		t.Fatalf("nil level should be None")
	}
	if errs.Level(errors.New("plain")) != errs.Fatal {
		t.Fatalf("plain error should be fatal")
	}
}

func TestExtraAndAs(t *testing.T) {
	err := errs.WrapWithExtra(errs.Warnf("bad %s", "input"), "decode", "drawSize=0")
	e, ok := errs.AsErr(err)
	if !ok || e.Extra != "drawSize=0" || e.ErrLv != errs.Warn {
		t.Fatalf("AsErr = %+v, %v", e, ok)
	}
	if _, ok := errs.AsErr(errors.New("x")); ok {
		t.Fatalf("plain error converted")
	}
	if errs.ErrLevel(99).String() != "" || errs.Log.String() != "log" {
		t.Fatalf("level names")
	}
}
