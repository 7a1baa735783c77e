package sidechan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"sidechan/calib"
	"sidechan/filters"
	"sidechan/load"
	"sidechan/scan"
)

// Config 结构体用于集中管理一次运行的所有可调参数
// 一次运行期间不可修改
type Config struct {
	// Name 运行名称，扫参时用于区分
	Name string `yaml:"name" json:"name,omitempty"`

	// --- 采集 (Calibrator) ---
	// 负责交替驱动 A/B 并收集计时样本
	Acquisition struct {
		Window       Duration `yaml:"window" json:"window"`             // 每轮采集窗口 (例如 500ms)。越长单轮样本越多，但漂移影响越大
		Repetitions  int      `yaml:"repetitions" json:"repetitions"`   // 总轮数 (>= 2)，偶数轮 A，奇数轮 B。前 10% 丢弃
		Settle       Duration `yaml:"settle" json:"settle"`             // 切换状态后的等待 (>= 0)，让渲染稳定下来
		Warmup       Duration `yaml:"warmup" json:"warmup"`             // 校准前预热采集 (>= 0)，0 表示跳过
		CollectGrace Duration `yaml:"collectGrace" json:"collectGrace"` // 单次采集允许超出窗口的时间 (>= 0)，0 表示不限制
		Retries      int      `yaml:"retries" json:"retries"`           // 采集超时或空窗口的重试次数 (>= 0)
		RoundTimeout Duration `yaml:"roundTimeout" json:"roundTimeout"` // 校准或扫描整轮的上限 (> 0)，超过后运行失败
	} `yaml:"acquisition" json:"acquisition"`

	// --- 分类 (DualThreshold) ---
	Classifier struct {
		Low      float64 `yaml:"low" json:"low"`           // 低阈值比例 [0,1)。低于 A.Mean + range*Low 判为 A
		High     float64 `yaml:"high" json:"high"`         // 高阈值比例 (Low,1]。高于 A.Mean + range*High 判为 B
		TieBreak string  `yaml:"tieBreak" json:"tieBreak"` // 模糊区间策略: "unknown" (默认) 或 "median"
	} `yaml:"classifier" json:"classifier"`

	// --- 信道 (采样端 + 目标驱动) ---
	Channel struct {
		Source string `yaml:"source" json:"source"` // "synthetic", "probe" 或 "audio"

		// 目标驱动，Serial 为空时不驱动外部目标
		Serial   string `yaml:"serial" json:"serial,omitempty"`
		BaudRate int    `yaml:"baudRate" json:"baudRate"`
		DivSize  int    `yaml:"divSize" json:"divSize"` // 目标渲染的分块数，越大 A/B 差异越明显
		Layers   int    `yaml:"layers" json:"layers"`   // 目标渲染的叠加层数

		// probe
		CPU         int `yaml:"cpu" json:"cpu"`                 // 绑定的 CPU，<0 不绑定
		BufferBytes int `yaml:"bufferBytes" json:"bufferBytes"` // 驱逐缓冲区大小

		// audio
		AudioDevice string `yaml:"audioDevice" json:"audioDevice,omitempty"`
		SampleRate  int    `yaml:"sampleRate" json:"sampleRate"`

		// synthetic
		MeanA float64 `yaml:"meanA" json:"meanA"`
		MeanB float64 `yaml:"meanB" json:"meanB"`
		Std   float64 `yaml:"std" json:"std"`
		Rate  float64 `yaml:"rate" json:"rate"` // 每秒样本数
		Seed  int64   `yaml:"seed" json:"seed"`
	} `yaml:"channel" json:"channel"`

	// --- 负载发生器 ---
	Load load.Config `yaml:"load" json:"load"`

	// --- 扫描 (ScanController) ---
	Scan struct {
		CalibrateOnly bool     `yaml:"calibrateOnly" json:"calibrateOnly"`
		Width         int      `yaml:"width" json:"width"`
		Height        int      `yaml:"height" json:"height"`
		PixelWindow   Duration `yaml:"pixelWindow" json:"pixelWindow"`
		PixelSettle   Duration `yaml:"pixelSettle" json:"pixelSettle"`
		Checkerboard  int      `yaml:"checkerboard" json:"checkerboard"` // 棋盘格边长，0 表示没有真值
		DriftWindow   int      `yaml:"driftWindow" json:"driftWindow"`   // 漂移检测窗口，0 关闭
		Record        string   `yaml:"record" json:"record,omitempty"`   // 逐像素 CSV 文件
	} `yaml:"scan" json:"scan"`
}

// DefaultConfig 返回一个每个字段都有值的默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	// --- 采集 ---
	cfg.Acquisition.Window = Duration(500 * time.Millisecond)
	cfg.Acquisition.Repetitions = 50
	cfg.Acquisition.Settle = Duration(100 * time.Millisecond)
	cfg.Acquisition.Warmup = Duration(5 * time.Second)
	cfg.Acquisition.CollectGrace = Duration(2 * time.Second)
	cfg.Acquisition.Retries = 3
	cfg.Acquisition.RoundTimeout = Duration(5 * time.Minute)

	// --- 分类 ---
	cfg.Classifier.Low = 0.3
	cfg.Classifier.High = 0.7
	cfg.Classifier.TieBreak = filters.TieBreakUnknown.String()

	// --- 信道 ---
	cfg.Channel.Source = "synthetic"
	cfg.Channel.BaudRate = 115200
	cfg.Channel.DivSize = 4000
	cfg.Channel.Layers = 30
	cfg.Channel.CPU = -1
	cfg.Channel.BufferBytes = 8 << 20
	cfg.Channel.SampleRate = 48000
	cfg.Channel.MeanA = 100
	cfg.Channel.MeanB = 150
	cfg.Channel.Std = 5
	cfg.Channel.Rate = 1000
	cfg.Channel.Seed = 1

	// --- 负载 ---
	cfg.Load = load.DefaultConfig()

	// --- 扫描 ---
	cfg.Scan.Width = 48
	cfg.Scan.Height = 48
	cfg.Scan.PixelWindow = Duration(100 * time.Millisecond)
	cfg.Scan.PixelSettle = Duration(20 * time.Millisecond)
	cfg.Scan.Checkerboard = 12
	cfg.Scan.DriftWindow = 16

	return cfg
}

// Validate 检查所有字段的取值范围
func (c *Config) Validate() error {
	if err := c.calibConfig().Validate(); err != nil {
		return fmt.Errorf("acquisition: %w", err)
	}
	if c.Acquisition.RoundTimeout <= 0 {
		return fmt.Errorf("acquisition.roundTimeout must be > 0")
	}
	if !(0 <= c.Classifier.Low && c.Classifier.Low < c.Classifier.High && c.Classifier.High <= 1) {
		return fmt.Errorf("classifier: need 0 <= low < high <= 1, got low=%v high=%v", c.Classifier.Low, c.Classifier.High)
	}
	if _, err := filters.ParseTieBreak(c.Classifier.TieBreak); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	switch c.Channel.Source {
	case "synthetic":
		if c.Channel.Rate <= 0 || c.Channel.Std < 0 {
			return fmt.Errorf("channel: synthetic rate must be > 0 and std >= 0")
		}
	case "probe", "audio":
	default:
		return fmt.Errorf("channel: unknown source %q (want synthetic, probe or audio)", c.Channel.Source)
	}
	if c.Channel.Serial != "" && c.Channel.BaudRate <= 0 {
		return fmt.Errorf("channel: baudRate must be > 0")
	}
	if err := c.Load.Validate(); err != nil {
		return err
	}
	if !c.Scan.CalibrateOnly {
		if err := c.scanOptions().Validate(); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if c.Scan.Checkerboard < 0 {
			return fmt.Errorf("scan: checkerboard must be >= 0")
		}
	}
	return nil
}

func (c *Config) calibConfig() calib.Config {
	return calib.Config{
		Repetitions:  c.Acquisition.Repetitions,
		Window:       c.Acquisition.Window.D(),
		Settle:       c.Acquisition.Settle.D(),
		Warmup:       c.Acquisition.Warmup.D(),
		CollectGrace: c.Acquisition.CollectGrace.D(),
		Retries:      c.Acquisition.Retries,
	}
}

func (c *Config) scanOptions() scan.Options {
	opts := scan.Options{
		Width:        c.Scan.Width,
		Height:       c.Scan.Height,
		PixelWindow:  c.Scan.PixelWindow.D(),
		PixelSettle:  c.Scan.PixelSettle.D(),
		CollectGrace: c.Acquisition.CollectGrace.D(),
		Retries:      c.Acquisition.Retries,
		DriftWindow:  c.Scan.DriftWindow,
	}
	if c.Scan.Checkerboard > 0 {
		opts.Truth = scan.Checkerboard{Square: c.Scan.Checkerboard}
	}
	return opts
}

// Clone 返回深拷贝 (Config 里没有引用类型)
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// ParseConfig 把 YAML 合并到默认配置上并校验
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig 读取 YAML 配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseSeries 解析一个 YAML 配置列表，每一项都单独合并到默认配置上
func ParseSeries(data []byte) ([]*Config, error) {
	var items []yaml.MapSlice
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse series: %w", err)
	}
	cfgs := make([]*Config, 0, len(items))
	for i, item := range items {
		raw, err := yaml.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("series entry %d: %w", i, err)
		}
		cfg, err := ParseConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("series entry %d: %w", i, err)
		}
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("run-%d", i+1)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// LoadSeries 读取 YAML 配置列表文件
func LoadSeries(path string) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeries(data)
}

// Option 修改默认配置的一项，用于 QuickRun
type Option func(*Config)

// WithWindow 设置采集窗口和轮数
func WithWindow(window time.Duration, repetitions int) Option {
	return func(c *Config) {
		c.Acquisition.Window = Duration(window)
		c.Acquisition.Repetitions = repetitions
	}
}

// WithThresholds 设置分类阈值
func WithThresholds(low, high float64) Option {
	return func(c *Config) {
		c.Classifier.Low = low
		c.Classifier.High = high
	}
}

// WithTieBreak 设置模糊区间策略
func WithTieBreak(tb filters.TieBreak) Option {
	return func(c *Config) {
		c.Classifier.TieBreak = tb.String()
	}
}

// WithSource 选择采样端
func WithSource(source string) Option {
	return func(c *Config) {
		c.Channel.Source = source
	}
}

// WithSynthetic 设置合成信道参数
func WithSynthetic(meanA, meanB, std float64, seed int64) Option {
	return func(c *Config) {
		c.Channel.Source = "synthetic"
		c.Channel.MeanA = meanA
		c.Channel.MeanB = meanB
		c.Channel.Std = std
		c.Channel.Seed = seed
	}
}

// WithScan 设置扫描尺寸和棋盘格
func WithScan(width, height, checkerboard int) Option {
	return func(c *Config) {
		c.Scan.CalibrateOnly = false
		c.Scan.Width = width
		c.Scan.Height = height
		c.Scan.Checkerboard = checkerboard
	}
}

// CalibrateOnly 只做校准
func CalibrateOnly() Option {
	return func(c *Config) {
		c.Scan.CalibrateOnly = true
	}
}

// WithLoad 设置负载发生器
func WithLoad(workers, intensity int) Option {
	return func(c *Config) {
		c.Load.Enabled = workers > 0
		c.Load.Workers = workers
		c.Load.Intensity = intensity
	}
}

// Fast 去掉预热和等待，适合合成信道
func Fast() Option {
	return func(c *Config) {
		c.Acquisition.Warmup = 0
		c.Acquisition.Settle = 0
		c.Scan.PixelSettle = 0
	}
}
