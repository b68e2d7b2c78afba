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

// Package errs 定義 gachalab 全域共用的分級錯誤。
//
// 分級只描述「誰該負責」：
//   - Fatal   : 系統 / 程式問題，呼叫端無法自行修正
//   - Warn    : 輸入 / 設定問題，呼叫端修正參數即可重試
//   - Missing : 指定的資源（job、report）不存在或已過期
//   - Log     : 僅需記錄，不影響流程
package errs

import (
	"errors"
	"fmt"
)

// ErrLevel 錯誤分級
type ErrLevel uint8

const (
	None ErrLevel = iota
	Fatal
	Warn
	Missing
	Log
)

var errLvName = [...]string{
	None:    "",
	Fatal:   "fatal",
	Warn:    "warn",
	Missing: "missing",
	Log:     "log",
}

// String 回傳分級名稱，未知分級回傳空字串。
func (lv ErrLevel) String() string {
	if int(lv) < len(errLvName) {
		return errLvName[lv]
	}
	return ""
}

// E 是統一的錯誤型別。
//
// Message 為主訊息；Extra 為附加上下文（例如參數內容）；Cause 為下層錯誤。
type E struct {
	Message string
	Extra   string
	Cause   error
	ErrLv   ErrLevel
}

func (e *E) Error() string {
	base := fmt.Sprintf("errlv=%s %s", e.ErrLv, e.Message)
	if e.Extra != "" {
		base += " | extra: " + e.Extra
	}
	if e.Cause != nil {
		base += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return base
}

// Unwrap 讓 errors.Is / errors.As 能夠向下展開。
func (e *E) Unwrap() error { return e.Cause }

func New(errLv ErrLevel, msg string) *E {
	return &E{Message: msg, ErrLv: errLv}
}

func NewFatal(msg string) *E   { return New(Fatal, msg) }
func NewWarn(msg string) *E    { return New(Warn, msg) }
func NewMissing(msg string) *E { return New(Missing, msg) }
func NewLog(msg string) *E     { return New(Log, msg) }

func Fatalf(format string, a ...any) *E { return NewFatal(fmt.Sprintf(format, a...)) }
func Warnf(format string, a ...any) *E  { return NewWarn(fmt.Sprintf(format, a...)) }

// NewWithExtra 與 New 相同，但附加 Extra 上下文。
func NewWithExtra(errLv ErrLevel, msg string, extra string) *E {
	e := New(errLv, msg)
	e.Extra = extra
	return e
}

// Wrap 以 msg 包裝 cause。
//
// 分級沿用 cause 鏈上第一個 *E 的分級；cause 不是 *E（標準庫或三方套件錯誤）時視為 Fatal。
// 已知是「可預期、可處理」的情境時，請直接 New 一個指定分級的 *E。
func Wrap(cause error, msg string) *E {
	r := New(Level(cause), msg)
	r.Cause = cause
	return r
}

// Wrapf 是 Wrap 的格式化版本。
func Wrapf(cause error, format string, a ...any) *E {
	return Wrap(cause, fmt.Sprintf(format, a...))
}

// WrapWithExtra 以 msg 與 extra 包裝 cause，分級規則同 Wrap。
func WrapWithExtra(cause error, msg string, extra string) *E {
	r := Wrap(cause, msg)
	r.Extra = extra
	return r
}

// Level 回傳 err 鏈上第一個 *E 的分級；err 為 nil 回傳 None，非 *E 回傳 Fatal。
func Level(err error) ErrLevel {
	if err == nil {
		return None
	}
	var e *E
	if errors.As(err, &e) {
		return e.ErrLv
	}
	return Fatal
}

func AsErr(err error) (*E, bool) {
	var e *E
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
