package stats

import (
	"fmt"
	"strings"
)

// QualityTier 是对两类分布可分离程度的粗略评价
type QualityTier int

const (
	TierPoor QualityTier = iota
	TierMarginal
	TierFair
	TierGood
	TierExcellent
	TierOutstanding
)

var tierNames = [...]string{"poor", "marginal", "fair", "good", "excellent", "outstanding"}

func (q QualityTier) String() string {
	if q < 0 || int(q) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(q))
	}
	return tierNames[q]
}

// MarshalText implements encoding.TextMarshaler.
func (q QualityTier) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *QualityTier) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for i, n := range tierNames {
		if n == name {
			*q = QualityTier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown quality tier %q", string(b))
}

// Breakpoint 表示 ratio < Below 时的等级
type Breakpoint struct {
	Below float64
	Tier  QualityTier
}

// DefaultTiers 是默认的分级策略，按 Below 升序排列
// 超过最后一档的 ratio 为 TierOutstanding
var DefaultTiers = []Breakpoint{
	{Below: 1.05, Tier: TierPoor},
	{Below: 1.15, Tier: TierMarginal},
	{Below: 1.3, Tier: TierFair},
	{Below: 1.5, Tier: TierGood},
	{Below: 2.0, Tier: TierExcellent},
}

// Tier 使用 DefaultTiers 对 ratio 分级
func Tier(ratio float64) QualityTier {
	return TierWith(DefaultTiers, ratio)
}

// TierWith 使用自定义分级表
func TierWith(table []Breakpoint, ratio float64) QualityTier {
	for _, bp := range table {
		if ratio < bp.Below {
			return bp.Tier
		}
	}
	return TierOutstanding
}
