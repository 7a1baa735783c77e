package scan

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"sidechan/filters"
	"sidechan/types"
)

// Pixel 是单个坐标的分类记录
type Pixel struct {
	X, Y     int
	Decision filters.Decision
	Truth    types.Label // 无真值时为 LabelUnknown
}

// Recorder 定义逐像素记录接口
// 控制器只依赖这个接口，不依赖具体的文件操作
type Recorder interface {
	Record(p Pixel) error
	Close() error
}

// CsvRecorder 把逐像素结果写成 CSV
type CsvRecorder struct {
	closer io.Closer
	writer *bufio.Writer
}

// NewCsvRecorder 在 w 上创建记录器并写入表头
func NewCsvRecorder(w io.Writer) (*CsvRecorder, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("x,y,label,confidence,mean,median,n,truth\n"); err != nil {
		return nil, err
	}
	r := &CsvRecorder{writer: bw}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// NewCsvFileRecorder 创建 CSV 文件记录器
func NewCsvFileRecorder(filename string) (*CsvRecorder, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewCsvRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Record 记录单个像素
func (r *CsvRecorder) Record(p Pixel) error {
	d := p.Decision
	_, err := fmt.Fprintf(r.writer, "%d,%d,%s,%s,%f,%f,%d,%s\n",
		p.X, p.Y, d.Label, d.Confidence, d.Mean, d.Median, d.N, p.Truth)
	return err
}

// Close 刷新缓冲区并关闭底层文件
func (r *CsvRecorder) Close() error {
	err := r.writer.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NopRecorder 是一个空实现，不记录数据时使用
type NopRecorder struct{}

func (NopRecorder) Record(Pixel) error { return nil }
func (NopRecorder) Close() error       { return nil }
