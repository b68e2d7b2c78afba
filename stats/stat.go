package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/shopspring/decimal"
	"github.com/zintix-labs/gachalab/spec"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat/distuv"
)

var lang language.Tag = language.English

// costPlaces 換算貨幣保留的小數位數
const costPlaces = 6

// 信賴區間
type CI struct {
	Lo float64 `json:"lo" yaml:"lo"`
	Hi float64 `json:"hi" yaml:"hi"`
}

// Result 單次模擬結果
//
// 紀錄員只填入計數欄位，衍生欄位（成本、百分比、檢定）由 Done 一次計算。
type Result struct {
	Status     spec.Status       `json:"status"            yaml:"status"`
	Seed       int64             `json:"seed"              yaml:"seed"`
	Cached     bool              `json:"cached"            yaml:"cached"`
	Summary    *Summary          `json:"summary"           yaml:"summary"`
	Categories []CategoryStat    `json:"categories"        yaml:"categories"`
	Series     []ProgressPoint   `json:"series"            yaml:"series"`
	History    []spec.DrawRecord `json:"history,omitempty" yaml:"history,omitempty"`
	Log        []string          `json:"log"               yaml:"log"`
	isDone     bool
}

type Summary struct {
	Draws          int     `json:"draws"          yaml:"draws"`
	Items          int     `json:"items"          yaml:"items"`
	DrawSize       int     `json:"drawSize"       yaml:"drawSize"`
	CostPerDraw    float64 `json:"costPerDraw"    yaml:"costPerDraw"`
	ConversionRate float64 `json:"conversionRate" yaml:"conversionRate"`
	TotalCost      float64 `json:"totalCost"      yaml:"totalCost"`
	ConvertedCost  float64 `json:"convertedCost"  yaml:"convertedCost"`
	TotalSurplus   int     `json:"totalSurplus"   yaml:"totalSurplus"`
	Completion     float64 `json:"completion"     yaml:"completion"` // 0~100，目標 > 0 分類的平均完成度，未封頂
	FitChi2        float64 `json:"fitChi2"        yaml:"fitChi2"`
	FitDF          int     `json:"fitDF"          yaml:"fitDF"`
	FitPValue      float64 `json:"fitPValue"      yaml:"fitPValue"`
}

// CategoryStat 單一分類的統計，百分比單位皆為 %
type CategoryStat struct {
	Name        string  `json:"name"        yaml:"name"`
	Target      int     `json:"target"      yaml:"target"`
	Weight      float64 `json:"weight"      yaml:"weight"`
	Obtained    int     `json:"obtained"    yaml:"obtained"`
	Counted     int     `json:"counted"     yaml:"counted"`
	Surplus     int     `json:"surplus"     yaml:"surplus"`
	ExpectedPct float64 `json:"expectedPct" yaml:"expectedPct"`
	ActualPct   float64 `json:"actualPct"   yaml:"actualPct"`
	ActualCI    CI      `json:"actualCI"    yaml:"actualCI"`
	ReachedAt   int     `json:"reachedAt"   yaml:"reachedAt"` // 達標的抽數，0 表示未達標或目標為 0
}

// ProgressPoint 圖表用的進度快照；Progress 與 Result.Categories 同序
type ProgressPoint struct {
	Draw     int       `json:"draw"     yaml:"draw"`
	Progress []float64 `json:"progress" yaml:"progress"`
	Overall  float64   `json:"overall"  yaml:"overall"`
	Cost     float64   `json:"cost"     yaml:"cost"`
}

// ============================================================
// ** 公開方法 **
// ============================================================

// Done 把計數轉換為最終統計結果。重複呼叫不會重算。
func (r *Result) Done() {
	if r.isDone || r.Summary == nil {
		return
	}
	s := r.Summary

	s.TotalCost = float64(s.Draws) * s.CostPerDraw
	s.ConvertedCost = convert(s.TotalCost, s.ConversionRate)

	totalW := 0.0
	s.Items, s.TotalSurplus = 0, 0
	for _, c := range r.Categories {
		totalW += c.Weight
		s.Items += c.Obtained
		s.TotalSurplus += c.Surplus
	}

	sumRatio, targeted := 0.0, 0
	for i := range r.Categories {
		c := &r.Categories[i]
		if totalW > 0 {
			c.ExpectedPct = 100 * c.Weight / totalW
		}
		hat, ci := proportionCICP(c.Obtained, s.Items, 0.95)
		c.ActualPct = 100 * hat
		c.ActualCI = CI{Lo: 100 * ci.Lo, Hi: 100 * ci.Hi}
		if c.Target > 0 {
			sumRatio += Ratio(c.Counted, c.Target)
			targeted++
		}
	}
	s.Completion = 100
	if targeted > 0 {
		s.Completion = 100 * sumRatio / float64(targeted)
	}
	s.FitChi2, s.FitDF, s.FitPValue = r.fit(totalW)
	r.isDone = true
}

// UnmarshalJSON 從儲存讀回的結果視為已完成，衍生欄位（可能已擾動）不再重算。
func (r *Result) UnmarshalJSON(b []byte) error {
	type plain Result
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	r.isDone = true
	return nil
}

// Ratio 單一分類的完成比例，夾在 [0,1]；目標為 0 視為已完成。
func Ratio(counted, target int) float64 {
	if target <= 0 {
		return 1
	}
	return min(1, float64(counted)/float64(target))
}

// Category 依名稱取分類統計
func (r *Result) Category(name string) (CategoryStat, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryStat{}, false
}

// Clone 深拷貝，快取與擾動都在副本上操作
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Summary != nil {
		sum := *r.Summary
		cp.Summary = &sum
	}
	cp.Categories = slices.Clone(r.Categories)
	cp.Series = make([]ProgressPoint, len(r.Series))
	for i, p := range r.Series {
		p.Progress = slices.Clone(p.Progress)
		cp.Series[i] = p
	}
	cp.History = slices.Clone(r.History)
	cp.Log = slices.Clone(r.Log)
	return &cp
}

func (r *Result) WriteWith(w io.Writer, rep ResultRender) error {
	r.Done()
	return rep.Write(w, r)
}

func (r *Result) StdOut(ut time.Duration) {
	r.Done()
	formatDuration(ut, r.Summary.Draws)
	sk, sm := r.fmtBasic()
	fmt.Println(fmtTable("Simulation Summary", sk, sm))
	ck, cm := r.fmtCategories()
	fmt.Println(fmtTable("Categories", ck, cm))
}

// ============================================================
// ** 內部方法 **
// ============================================================

func convert(cost, rate float64) float64 {
	v, _ := decimal.NewFromFloat(cost).Mul(decimal.NewFromFloat(rate)).Round(costPlaces).Float64()
	return v
}

// fit 實際分布對權重分布的卡方適合度檢定，只計入權重 > 0 的分類。
// 權重 0 卻抽到的分類代表抽樣器出錯，直接給 p = 0。
func (r *Result) fit(totalW float64) (chi2 float64, df int, p float64) {
	n := float64(r.Summary.Items)
	if n == 0 || totalW <= 0 {
		return 0, 0, 1
	}
	df = -1
	for _, c := range r.Categories {
		if c.Weight <= 0 {
			if c.Obtained > 0 {
				return 0, 0, 0
			}
			continue
		}
		exp := n * c.Weight / totalW
		d := float64(c.Obtained) - exp
		chi2 += d * d / exp
		df++
	}
	if df < 1 {
		return 0, 0, 1
	}
	p = distuv.ChiSquared{K: float64(df)}.Survival(chi2)
	return chi2, df, p
}

func formatDuration(d time.Duration, draws int) {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	dps := int(float64(draws) / sec)
	if sec < 60.0 {
		p.Printf("used: %.2f seconds\ndps : %d draws/sec\n", sec, dps)
		return
	}
	s := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		p.Printf("used: %dm %ds\ndps : %d draws/sec\n", m, s, dps)
		return
	}
	p.Printf("used: %dh:%dm:%ds\ndps : %d draws/sec\n", h, m, s, dps)
}

func (r *Result) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	s := r.Summary
	basic := map[string]string{
		"Status":         r.Status.String(),
		"Seed":           fmt.Sprintf("%d", r.Seed),
		"Cached":         fmt.Sprintf("%t", r.Cached),
		"Total Draws":    p.Sprintf("%d", s.Draws),
		"Draw Size":      p.Sprintf("%d", s.DrawSize),
		"Total Items":    p.Sprintf("%d", s.Items),
		"Total Surplus":  p.Sprintf("%d", s.TotalSurplus),
		"Total Cost":     p.Sprintf("%.2f", s.TotalCost),
		"Converted Cost": p.Sprintf("%.2f", s.ConvertedCost),
		"Completion":     p.Sprintf("%.2f %%", s.Completion),
		"Fit p-value":    p.Sprintf("%.4f (chi2 %.3f, df %d)", s.FitPValue, s.FitChi2, s.FitDF),
	}
	keys := []string{"Status", "Seed", "Cached", "Total Draws", "Draw Size", "Total Items", "Total Surplus", "Total Cost", "Converted Cost", "Completion", "Fit p-value"}
	return keys, basic
}

func (r *Result) fmtCategories() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	keys := make([]string, 0, len(r.Categories))
	msg := make(map[string]string, len(r.Categories))
	for _, c := range r.Categories {
		keys = append(keys, c.Name)
		msg[c.Name] = p.Sprintf("%d/%d (+%d) | %.2f%% vs %.2f%% [%.2f%%,%.2f%%]",
			c.Counted, c.Target, c.Surplus, c.ActualPct, c.ExpectedPct, c.ActualCI.Lo, c.ActualCI.Hi)
	}
	return keys, msg
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := runewidth.StringWidth(title) - 1
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider

	return fmtStr
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}
