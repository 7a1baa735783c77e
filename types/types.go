// Package types 定义各组件共享的标签与错误类型
package types

import "fmt"

// Label 是一次测量对应的类别
type Label int

const (
	LabelUnknown Label = iota // 落在模糊区间，无法判定
	LabelA                    // 参考状态 A (较快, "black")
	LabelB                    // 参考状态 B (较慢, "white")
)

// String returns the short name used in logs and JSON.
func (l Label) String() string {
	switch l {
	case LabelA:
		return "A"
	case LabelB:
		return "B"
	case LabelUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

// Other 返回另一个参考状态 (交替校准时使用)
func (l Label) Other() Label {
	switch l {
	case LabelA:
		return LabelB
	case LabelB:
		return LabelA
	default:
		return LabelUnknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(b []byte) error {
	switch string(b) {
	case "A", "a":
		*l = LabelA
	case "B", "b":
		*l = LabelB
	case "unknown", "":
		*l = LabelUnknown
	default:
		return fmt.Errorf("invalid label %q", string(b))
	}
	return nil
}

// Confidence 是分类结果的置信等级
type Confidence int

const (
	ConfidenceNone   Confidence = iota // Unknown
	ConfidenceMedium                   // 模糊区间内由中位数裁决
	ConfidenceHigh                     // 均值与中位数同时越过阈值
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
