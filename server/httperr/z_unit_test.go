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

package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"warn", errs.NewWarn("bad"), http.StatusBadRequest},
		{"invalid distribution", errs.Wrap(spec.ErrInvalidDistribution, "weights"), http.StatusBadRequest},
		{"missing", errs.Wrap(errs.NewMissing("gone"), "lookup"), http.StatusNotFound},
		{"fatal", errs.NewFatal("boom"), http.StatusInternalServerError},
		{"foreign", context.Canceled, http.StatusRequestTimeout},
		{"wrapped deadline", errs.Wrap(context.DeadlineExceeded, "simulate"), http.StatusGatewayTimeout},
		{"plain", json.Unmarshal([]byte("{"), new(any)), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Fatalf("%s: status = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestErrsWritesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Errs(rec, errs.Wrap(spec.ErrInvalidDistribution, "drawSize must be >= 1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var b Body
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("body: %v", err)
	}
	if !b.Invalid || b.Status != http.StatusBadRequest || b.Error == "" {
		t.Fatalf("body = %+v", b)
	}

	rec = httptest.NewRecorder()
	Errs(rec, nil)
	if rec.Body.Len() != 0 {
		t.Fatalf("nil error wrote %q", rec.Body)
	}
}
