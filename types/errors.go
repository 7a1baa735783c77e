package types

import "errors"

var (
	// ErrInsufficientData 某一类的样本池在裁剪后为空
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateStats 两类均值相同 (或为零)，无法建立阈值
	ErrDegenerateStats = errors.New("degenerate class statistics")
	// ErrAcquisitionTimeout 采样源在超时上限内没有响应
	ErrAcquisitionTimeout = errors.New("acquisition timeout")
	// ErrCancelled 运行被用户取消
	ErrCancelled = errors.New("cancelled")
	// ErrNotCalibrated 在校准完成前尝试分类或扫描
	ErrNotCalibrated = errors.New("not calibrated")
	// ErrInvalidThresholds low/high 不满足 0 <= low < high <= 1
	ErrInvalidThresholds = errors.New("invalid thresholds")
	// ErrBusy 已有一个运行在进行中
	ErrBusy = errors.New("run already in progress")
)
