//go:build lambda

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
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/zintix-labs/gachalab"
	"github.com/zintix-labs/gachalab/dto"
	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/server/httperr"
	"github.com/zintix-labs/gachalab/server/logger"
	"github.com/zintix-labs/gachalab/spec"
)

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

// Lambda 的容器會重複使用，Lab（含指紋快取）在冷啟動時建立一次。
var (
	lab     *gachalab.Lab
	presets = spec.BuiltinPresets()
	log     *slog.Logger
)

func handler(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(errs.NewWarn("invalid base64 body"))
		}
		body = string(decoded)
	}
	if len(body) > dto.MaxBody {
		return errResp(errs.NewWarn("request body too large"))
	}

	req, err := dto.DecodeSimulateJSON([]byte(body))
	if err != nil {
		return errResp(err)
	}
	p, err := req.Resolve(presets)
	if err != nil {
		return errResp(err)
	}
	seed := req.Seed
	if seed == 0 {
		seed = lab.NextSeed()
	}
	res, err := lab.SimulateContext(ctx, p, seed, nil, nil)
	if err != nil {
		return errResp(err)
	}

	headers := jsonHeader
	resp := dto.NewSimulateResponse(p, res)
	if resp.Warning != "" {
		headers = map[string]string{"Content-Type": "application/json", dto.WarningHeader: resp.Warning}
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return errResp(errs.Wrap(err, "lambda: encode response failed"))
	}
	return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: headers, Body: string(respJSON)}, nil
}

func errResp(err error) (events.LambdaFunctionURLResponse, error) {
	b := httperr.NewBody(err)
	if b.Status >= 500 {
		log.Error("lambda.simulate", "err", err)
	}
	body, _ := json.Marshal(b)
	return events.LambdaFunctionURLResponse{StatusCode: b.Status, Headers: jsonHeader, Body: string(body)}, nil
}

func main() {
	mode, err := logger.ParseMode(os.Getenv("GACHALAB_LOG_MODE"))
	if err != nil {
		mode = logger.ModeProd
	}
	log = logger.NewDefaultLogger(mode)
	l, err := gachalab.New(gachalab.DefaultConfig(), gachalab.WithLogger(log))
	if err != nil {
		log.Error("lambda.init", "err", err)
		os.Exit(1)
	}
	lab = l
	lambda.Start(handler)
}
