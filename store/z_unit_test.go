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

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/spec"
	"github.com/zintix-labs/gachalab/stats"
)

func sampleReport(title string) *Report {
	p := &spec.Params{
		Targets:        []spec.Target{{Name: "rare", Count: 2}, {Name: "legendary", Count: 1}},
		Weights:        []spec.Weight{{Name: "rare", Value: 95}, {Name: "legendary", Value: 5}},
		DrawSize:       1,
		CostPerDraw:    160,
		ConversionRate: 0.0099,
	}
	r := &stats.Result{
		Status:  spec.StatusCompleted,
		Seed:    9,
		Summary: &stats.Summary{Draws: 3, DrawSize: 1, CostPerDraw: 160, ConversionRate: 0.0099},
		Categories: []stats.CategoryStat{
			{Name: "rare", Target: 2, Weight: 95, Obtained: 2, Counted: 2, ReachedAt: 2},
			{Name: "legendary", Target: 1, Weight: 5, Obtained: 1, Counted: 1, ReachedAt: 3},
		},
	}
	return &Report{Title: title, Description: "d", Params: p, Result: r}
}

// exercise 對任一 ReportStore 跑同一組行為檢查
func exercise(t *testing.T, s ReportStore, tick func()) {
	t.Helper()
	ctx := context.Background()

	first := sampleReport("first")
	id, err := s.Save(ctx, first)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" || first.ID != id {
		t.Fatalf("id not assigned: %q", id)
	}
	tick()
	second := sampleReport("  second  ")
	second.Public = true
	id2, err := s.Save(ctx, second)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "first" || got.Result.Summary.TotalCost != 480 || got.Params.DrawSize != 1 {
		t.Fatalf("got = %+v", got)
	}
	if got.Result.Summary.ConvertedCost != 4.752 {
		t.Fatalf("converted = %v", got.Result.Summary.ConvertedCost)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != id2 || list[0].Title != "second" || !list[0].Public {
		t.Fatalf("list = %+v", list)
	}
	if list[1].Draws != 3 || list[1].Status != spec.StatusCompleted {
		t.Fatalf("entry = %+v", list[1])
	}

	// 覆寫保留建立時間
	created := got.CreatedAt
	tick()
	got.Title = "renamed"
	if _, err := s.Save(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.Get(ctx, id)
	if again.Title != "renamed" || !again.CreatedAt.Equal(created) || !again.UpdatedAt.After(created) {
		t.Fatalf("update = %+v (created %v)", again, created)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
	if errs.Level(s.Delete(ctx, "../../etc/passwd")) != errs.Missing {
		t.Fatalf("path-like id should be not found")
	}

	bad := sampleReport("")
	if _, err := s.Save(ctx, bad); errs.Level(err) != errs.Warn {
		t.Fatalf("empty title: %v", err)
	}
	bad = sampleReport("x")
	bad.Params.Weights[0].Value = -1
	if _, err := s.Save(ctx, bad); !errors.Is(err, spec.ErrInvalidDistribution) {
		t.Fatalf("invalid params: %v", err)
	}
	bad = sampleReport("x")
	bad.ID = "not-a-uuid"
	if _, err := s.Save(ctx, bad); errs.Level(err) != errs.Warn {
		t.Fatalf("bad id: %v", err)
	}
}

// fakeClock 每次 tick 前進一秒
func fakeClock() (func() time.Time, func()) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, func() { now = now.Add(time.Second) }
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	var tick func()
	s.now, tick = fakeClock()
	exercise(t, s, tick)
}

func TestMemStoreIsolation(t *testing.T) {
	s := NewMemStore()
	r := sampleReport("iso")
	id, err := s.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	r.Result.Summary.Draws = 999
	got, _ := s.Get(context.Background(), id)
	if got.Result.Summary.Draws != 3 {
		t.Fatalf("stored report shares memory with caller")
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	var tick func()
	s.now, tick = fakeClock()
	exercise(t, s, tick)
}

func TestFileStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r := sampleReport("persisted")
	r.Result.Done()
	r.Result.Summary.TotalCost = 470.5 // 例如擾動過的快取結果
	id, err := s.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Result.Done()
	if got.Result.Summary.TotalCost != 470.5 {
		t.Fatalf("stored result recomputed: %v", got.Result.Summary.TotalCost)
	}
	if got.Params.TotalWeight() != 100 {
		t.Fatalf("params = %+v", got.Params)
	}
	if _, err := NewFileStore(""); err == nil {
		t.Fatalf("empty dir accepted")
	}
}

func TestReportRow(t *testing.T) {
	r := sampleReport("row")
	if err := prepare(r, time.Unix(100, 0).UTC()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	row, err := toRow(r)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if row.Status != "completed" || row.Draws != 3 || row.TotalCost != 480 {
		t.Fatalf("row = %+v", row)
	}
	back, err := row.report()
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if back.ID != r.ID || back.Result.Summary.ConvertedCost != 4.752 || len(back.Params.Weights) != 2 {
		t.Fatalf("back = %+v", back)
	}
	e := row.entry()
	if e.Status != spec.StatusCompleted || e.Title != "row" {
		t.Fatalf("entry = %+v", e)
	}
	if (reportRow{}).TableName() != "gachalab_reports" {
		t.Fatalf("table name")
	}
}
