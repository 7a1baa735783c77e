package scan

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"

	"sidechan/types"
)

// 位图灰度值: A 黑，B 白，未知为中灰
const (
	GrayA       uint8 = 0
	GrayB       uint8 = 255
	GrayUnknown uint8 = 128
)

// NewBitmap 创建一张全部为未知灰度的位图
func NewBitmap(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = GrayUnknown
	}
	return img
}

// GrayFor 返回标签对应的灰度
func GrayFor(l types.Label) uint8 {
	switch l {
	case types.LabelA:
		return GrayA
	case types.LabelB:
		return GrayB
	default:
		return GrayUnknown
	}
}

func setPixel(img *image.Gray, x, y int, l types.Label) {
	img.SetGray(x, y, color.Gray{Y: GrayFor(l)})
}

// EncodeBitmap 按格式 ("png" 或 "bmp") 编码位图
func EncodeBitmap(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, img)
	case "bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported bitmap format %q", format)
	}
}

// SaveBitmap 按扩展名选择格式写文件
func SaveBitmap(path string, img image.Image) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return fmt.Errorf("bitmap path %q has no extension", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeBitmap(f, img, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
