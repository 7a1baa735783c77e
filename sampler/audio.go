package sampler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// AudioJitterConfig 音频回调抖动计时器参数
type AudioJitterConfig struct {
	SampleRate int    // 采集采样率
	PeriodSize uint32 // 每次回调的帧数，0 表示使用后端默认值
	Device     string // 设备名称子串，空表示默认设备
	Buffer     int    // 间隔通道缓冲长度
}

// AudioJitter 以采集设备相邻两次回调的间隔 (微秒) 作为计时样本
//
// 回调运行在音频线程里，只做一次非阻塞发送，满了就丢。
type AudioJitter struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	ch     chan float64
	last   time.Time

	mu  sync.Mutex
	log *logrus.Entry
}

// NewAudioJitter 打开采集设备并开始产生间隔样本
func NewAudioJitter(cfg AudioJitterConfig, log *logrus.Entry) (*AudioJitter, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	aj := &AudioJitter{
		ctx: ctx,
		ch:  make(chan float64, cfg.Buffer),
		log: log.WithField("meter", "audio"),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = cfg.PeriodSize
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(cfg.Device)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					aj.log.WithField("device", info.Name()).Info("selected capture device")
					break
				}
			}
		}
	}

	onRecvFrames := func(_, _ []byte, _ uint32) {
		now := time.Now()
		if !aj.last.IsZero() {
			select {
			case aj.ch <- float64(now.Sub(aj.last).Nanoseconds()) / 1e3:
			default:
			}
		}
		aj.last = now
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init device: %w", err)
	}
	aj.device = device

	if err := device.Start(); err != nil {
		aj.Close()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}
	aj.log.WithField("rate", device.SampleRate()).Info("audio jitter meter started")
	return aj, nil
}

// Measure implements Meter.
func (aj *AudioJitter) Measure(ctx context.Context, d time.Duration) ([]float64, error) {
	aj.mu.Lock()
	defer aj.mu.Unlock()

	// 先清掉窗口开始前积压的间隔
	for drained := false; !drained; {
		select {
		case <-aj.ch:
		default:
			drained = true
		}
	}

	var out []float64
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-t.C:
			return out, nil
		case v := <-aj.ch:
			out = append(out, v)
		}
	}
}

// Close 停止设备并释放资源
func (aj *AudioJitter) Close() error {
	if aj.device != nil {
		aj.device.Uninit()
		aj.device = nil
	}
	if aj.ctx != nil {
		_ = aj.ctx.Uninit()
		aj.ctx.Free()
		aj.ctx = nil
	}
	return nil
}
