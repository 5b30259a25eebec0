package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pocketqube-lab/comms-server/internal/gs"
)

// runUplinkTLE 解析 YAML 轨道根数文件并提交到运行中的地面站守护进程
func runUplinkTLE(args []string) error {
	fs := flag.NewFlagSet("uplink-tle", flag.ContinueOnError)
	file := fs.String("file", "", "YAML 轨道根数文件")
	addr := fs.String("addr", "http://localhost:8080", "地面站API地址")
	token := fs.String("token", "", "API 令牌，认证开启时必填")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("missing -file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	// 先在本地校验，格式错误不必打到服务端
	tle, err := gs.ParseTLEYAML(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}

	req, err := http.NewRequest(http.MethodPost, *addr+"/api/v1/tle", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/yaml")
	if *token != "" {
		req.Header.Set("X-API-Key", *token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}
	fmt.Printf("TLE %s accepted: %s\n", tle.Name, body)
	return nil
}
