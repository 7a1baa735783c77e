package sidechan

import (
	"fmt"
	"time"
)

// Duration 是按 Go 时长字符串 ("500ms") 读写的 time.Duration
// YAML 配置和 JSON 记录使用同一种写法，导出的记录可以直接作为配置读回
type Duration time.Duration

// D 返回 time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
// 整数按纳秒处理，和 time.Duration 的旧写法兼容
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
}
