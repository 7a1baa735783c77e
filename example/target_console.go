package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"sidechan/target"
	"sidechan/types"
)

// 手动驱动测试台目标，用于在正式校准前确认接线和协议
func main() {
	// 1. 配置串口参数
	portName := flag.String("port", "/dev/ttyUSB0", "serial port of the bench target")
	baudRate := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	fmt.Printf("Connecting to target on %s...\n", *portName)

	// 2. 创建驱动并打开连接
	s := target.NewSerial(*portName, *baudRate, log.NewEntry(log.StandardLogger()))
	if err := s.Open(); err != nil {
		log.Fatalf("Failed to open serial port: %v", err)
	}
	defer s.Close()
	fmt.Println("Connected. Commands: a | b | move X Y | tune DIV LAYERS | exit")

	// 3. 循环读取控制台输入
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		start := time.Now()
		err := dispatch(ctx, s, fields)
		cancel()
		if err != nil {
			log.Printf("Error: %v", err)
			continue
		}
		fmt.Printf("OK (%s)\n", time.Since(start).Round(time.Microsecond))
	}

	fmt.Println("Bye.")
}

func dispatch(ctx context.Context, s *target.Serial, fields []string) error {
	switch fields[0] {
	case "a":
		return s.SetState(ctx, types.LabelA)
	case "b":
		return s.SetState(ctx, types.LabelB)
	case "move", "tune":
		if len(fields) != 3 {
			return fmt.Errorf("%s needs two integers", fields[0])
		}
		x, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		y, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		if fields[0] == "move" {
			return s.MoveTo(ctx, x, y)
		}
		return s.Tune(ctx, x, y)
	}
	return fmt.Errorf("unknown command %q", fields[0])
}
