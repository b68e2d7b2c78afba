package stats

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// ResultRender 定義單次結果的輸出行為
type ResultRender interface {
	Write(w io.Writer, r *Result) error
}

// Json渲染
type JsonResultRender struct{}

func (jr *JsonResultRender) Write(w io.Writer, r *Result) error {
	return json.NewEncoder(w).Encode(r)
}

// YAML渲染
type YAMLResultRender struct{}

func (yr *YAMLResultRender) Write(w io.Writer, r *Result) error {
	// 只有「最內層的一維陣列」輸出成 flow style，例如 series.progress: [100, 50, 0]
	return forceReadableList(w, r)
}

// BatchRender 定義批次估計的輸出行為
type BatchRender interface {
	Write(w io.Writer, b *BatchReport) error
}

type JsonBatchRender struct{}

func (jr *JsonBatchRender) Write(w io.Writer, b *BatchReport) error {
	return json.NewEncoder(w).Encode(b)
}

type YAMLBatchRender struct{}

func (yr *YAMLBatchRender) Write(w io.Writer, b *BatchReport) error {
	return forceReadableList(w, b)
}

// RenderOf 依格式名稱取得渲染器，未知格式回傳 nil,false
func RenderOf(format string) (ResultRender, BatchRender, bool) {
	switch format {
	case "json":
		return &JsonResultRender{}, &JsonBatchRender{}, true
	case "yaml", "yml":
		return &YAMLResultRender{}, &YAMLBatchRender{}, true
	}
	return nil, nil, false
}

// YAML 內層方法
func forceReadableList[T any](w io.Writer, t *T) error {
	var node yaml.Node
	if err := node.Encode(t); err != nil {
		return err
	}
	styleReadableSequences(&node)

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(&node)
}

// styleReadableSequences 只把「元素全是 scalar」的 sequence 改成 flow style: [a, b, c]；
// 含 mapping 或子 sequence 的外層維持預設 block（展開）。
// history 這種長串 mapping 因此仍是一筆一行。
func styleReadableSequences(n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode, yaml.MappingNode:
		for _, c := range n.Content {
			styleReadableSequences(c)
		}
	case yaml.SequenceNode:
		scalarOnly := true
		for _, c := range n.Content {
			if c != nil && c.Kind != yaml.ScalarNode {
				scalarOnly = false
			}
			styleReadableSequences(c)
		}
		if scalarOnly {
			n.Style = yaml.FlowStyle
		}
	}
}
