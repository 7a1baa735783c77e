package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"

	"sidechan"
)

// sweeping 由 sweep 命令设置
var sweeping atomic.Bool

type canceller interface {
	Cancel()
}

// interrupt 处理第一次中断信号
// 单次运行只取消运行本身，扫描阶段会做完当前坐标；扫参还要取消命令的 context，不再开始后面的配置
func interrupt(r canceller, cancel context.CancelFunc, series bool) {
	r.Cancel()
	if series {
		cancel()
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := sidechan.NewRunner(log.NewEntry(log.StandardLogger()))

	// 第一次信号: 取消当前运行，第二次: 直接退出
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nCancelling...")
		interrupt(runner, cancel, sweeping.Load())
		<-sigChan
		fmt.Println("\nShutting down...")
		os.Exit(130)
	}()

	if err := newRootCmd(runner).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
