package sidechan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
)

// RunRecord 是扫参结果中的一项，失败时 Result 为 null
type RunRecord struct {
	RunNumber int     `json:"runNumber"`
	Config    *Config `json:"config"`
	Result    *Result `json:"result"`
	Error     string  `json:"error,omitempty"`
}

// WriteRecords 把记录写成扁平的 JSON 数组
func WriteRecords(w io.Writer, records []RunRecord) error {
	if records == nil {
		records = []RunRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// SaveRecords 把记录写到文件
func SaveRecords(path string, records []RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRecords(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TopByRatio 返回成功运行中 ratio 最高的 n 项 (n <= 0 表示全部)
func TopByRatio(records []RunRecord, n int) []RunRecord {
	var ok []RunRecord
	for _, r := range records {
		if r.Result != nil {
			ok = append(ok, r)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		return ok[i].Result.Ratio > ok[j].Result.Ratio
	})
	if n > 0 && len(ok) > n {
		ok = ok[:n]
	}
	return ok
}

// PrintRanking 打印排名表
func PrintRanking(w io.Writer, records []RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tRUN\tNAME\tRATIO\tTIER\tACCURACY\tELAPSED")
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.3f\t%s\t%.1f%%\t%.1fs\n",
			i+1, r.RunNumber, r.Config.Name, r.Result.Ratio, r.Result.QualityTier,
			r.Result.AccuracyPercent, r.Result.ElapsedSeconds)
	}
	tw.Flush()
}
