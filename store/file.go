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
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zintix-labs/gachalab/errs"
)

const fileExt = ".json.zst"

// FileStore 每份報告存成 <dir>/<id>.json.zst。
//
// 寫入先寫暫存檔再 rename，讀取端不會看到寫到一半的檔案。
type FileStore struct {
	dir string
	mu  sync.RWMutex
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errs.NewWarn("store.file: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(err, "store.file: create dir failed")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errs.Wrap(err, "store.file: create zstd encoder failed")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, errs.Wrap(err, "store.file: create zstd decoder failed")
	}
	return &FileStore{dir: dir, enc: enc, dec: dec, now: time.Now}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+fileExt)
}

func (f *FileStore) Save(ctx context.Context, r *Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "store.file: save")
	}
	if err := prepare(r, f.now()); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if old, err := f.read(r.ID); err == nil {
		r.CreatedAt = old.CreatedAt
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return "", errs.Wrap(err, "store.file: encode report failed")
	}
	compressed := f.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	tmp, err := os.CreateTemp(f.dir, r.ID+".*.tmp")
	if err != nil {
		return "", errs.Wrap(err, "store.file: create temp failed")
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errs.Wrap(err, "store.file: write failed")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errs.Wrap(err, "store.file: close failed")
	}
	if err := os.Rename(tmp.Name(), f.path(r.ID)); err != nil {
		os.Remove(tmp.Name())
		return "", errs.Wrap(err, "store.file: rename failed")
	}
	return r.ID, nil
}

func (f *FileStore) Get(ctx context.Context, id string) (*Report, error) {
	if !validID(id) {
		return nil, errs.Wrapf(ErrNotFound, "report %q", id)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(id)
}

func (f *FileStore) read(id string) (*Report, error) {
	compressed, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrapf(ErrNotFound, "report %q", id)
	}
	if err != nil {
		return nil, errs.Wrap(err, "store.file: read failed")
	}
	raw, err := f.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errs.Wrapf(err, "store.file: decompress %s failed", id)
	}
	r := new(Report)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, errs.Wrapf(err, "store.file: decode %s failed", id)
	}
	return r, nil
}

func (f *FileStore) List(ctx context.Context) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	des, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errs.Wrap(err, "store.file: list failed")
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, "store.file: list")
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if !validID(id) {
			continue
		}
		r, err := f.read(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Entry())
	}
	sortEntries(out)
	return out, nil
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return errs.Wrapf(ErrNotFound, "report %q", id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return errs.Wrapf(ErrNotFound, "report %q", id)
	}
	if err != nil {
		return errs.Wrap(err, "store.file: delete failed")
	}
	return nil
}

func (f *FileStore) Close() error {
	f.dec.Close()
	return f.enc.Close()
}
