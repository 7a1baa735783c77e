package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"

	"sidechan"
	"sidechan/filters"
)

// ============================================================================
// 1. 测试用例 (Test Cases)
// ============================================================================

// TestCase 描述一个合成信道的难度
// 两类均值越接近、噪声越大，分类越难
type TestCase struct {
	Name  string
	MeanA float64
	MeanB float64
	Std   float64
}

var testCases = []TestCase{
	{Name: "Level 1 (Easy)", MeanA: 100, MeanB: 200, Std: 5},
	{Name: "Level 2 (Medium)", MeanA: 100, MeanB: 140, Std: 10},
	{Name: "Level 2 (Medium)", MeanA: 100, MeanB: 125, Std: 10},
	{Name: "Level 3 (Hard)", MeanA: 100, MeanB: 112, Std: 12},
	{Name: "Level 4 (Extreme)", MeanA: 100, MeanB: 104, Std: 15},
}

// ============================================================================
// 2. 基准测试套件 (Benchmark Harness)
// ============================================================================

func runCase(ctx context.Context, runner *sidechan.Runner, tc TestCase, tb filters.TieBreak) (*sidechan.Result, time.Duration, error) {
	start := time.Now()
	res, err := runner.QuickRun(ctx,
		sidechan.WithSynthetic(tc.MeanA, tc.MeanB, tc.Std, 42),
		sidechan.WithWindow(50*time.Millisecond, 40),
		sidechan.WithScan(24, 24, 4),
		sidechan.WithTieBreak(tb),
		sidechan.Fast(),
		func(c *sidechan.Config) {
			c.Scan.PixelWindow = sidechan.Duration(20 * time.Millisecond)
			c.Scan.DriftWindow = 0
		},
	)
	return res, time.Since(start), err
}

func RunBenchmark(ctx context.Context) {
	runner := sidechan.NewRunner(log.NewEntry(log.StandardLogger()))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tA/B\tSTD\tTIEBREAK\tRATIO\tTIER\tACC(%)\tUNKNOWN\tTIME(ms)\tSTATUS")
	fmt.Fprintln(w, "-----\t---\t---\t--------\t-----\t----\t------\t-------\t--------\t------")

	for _, tc := range testCases {
		for _, tb := range []filters.TieBreak{filters.TieBreakUnknown, filters.TieBreakMedian} {
			res, elapsed, err := runCase(ctx, runner, tc, tb)
			if err != nil {
				fmt.Fprintf(w, "%s\t%.0f/%.0f\t%.1f\t%s\t-\t-\t-\t-\t%d\tERROR: %v\n",
					tc.Name, tc.MeanA, tc.MeanB, tc.Std, tb, elapsed.Milliseconds(), err)
				continue
			}

			status := "PASS"
			if res.AccuracyPercent < 95 {
				status = "WARN"
			}
			if res.AccuracyPercent < 70 {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s\t%.0f/%.0f\t%.1f\t%s\t%.3f\t%s\t%.1f\t%d\t%d\t%s\n",
				tc.Name, tc.MeanA, tc.MeanB, tc.Std, tb,
				res.Ratio, res.QualityTier, res.AccuracyPercent, res.Scan.Unknown,
				elapsed.Milliseconds(), status)
		}
	}
	w.Flush()
}

func main() {
	log.SetLevel(log.WarnLevel)
	RunBenchmark(context.Background())
}
