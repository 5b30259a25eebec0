package gs

import (
	"bufio"
	"context"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
)

// 操作台的会话令牌
const (
	consoleCommit  = "go"
	consoleDiscard = "end"
	consoleBufCap  = 8
)

// Console 地面操作串口控制台。
// 每行格式：指令助记名或十六进制码，后跟可选的十六进制载荷。
// 行先缓冲，收到 go 才整批受理，收到 end 放弃本批
type Console struct {
	up      *Uplinker
	limiter *rate.Limiter
	log     *zap.Logger
	buf     []SubmitRequest
}

// NewConsole 创建操作控制台；every 为行处理的最小间隔
func NewConsole(up *Uplinker, every time.Duration, logger *zap.Logger) *Console {
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	return &Console{
		up:      up,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		log:     logger.Named("console"),
	}
}

// Serve 读取控制台文本行直到 EOF 或 ctx 取消
func (c *Console) Serve(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		c.handleLine(ctx, line)
	}
	return sc.Err()
}

func (c *Console) handleLine(ctx context.Context, line string) {
	switch strings.ToLower(line) {
	case consoleCommit:
		for _, req := range c.buf {
			corrID, err := c.up.Submit(ctx, req)
			if err != nil {
				c.log.Warn("控制台指令受理失败",
					zap.String("command", satlink.CommandName(req.Command)),
					zap.Error(err))
				continue
			}
			c.log.Info("控制台指令已受理",
				zap.String("command", satlink.CommandName(req.Command)),
				zap.String("correlation_id", corrID))
		}
		c.buf = nil

	case consoleDiscard:
		c.buf = nil
		c.log.Info("控制台批次已放弃")

	default:
		req, ok := c.parseLine(line)
		if !ok {
			return
		}
		if len(c.buf) >= consoleBufCap {
			c.log.Warn("控制台缓冲已满，丢弃一行")
			return
		}
		c.buf = append(c.buf, req)
	}
}

// parseLine 解析 "指令 [载荷hex] [ecc]" 形式的一行
func (c *Console) parseLine(line string) (SubmitRequest, bool) {
	fields := strings.Fields(line)

	cmd, ok := parseCommand(fields[0])
	if !ok || !satlink.IsTEC(cmd) {
		c.log.Warn("控制台行指令未知", zap.String("line", line))
		return SubmitRequest{}, false
	}

	req := SubmitRequest{Command: cmd}
	rest := fields[1:]
	if len(rest) > 0 && strings.EqualFold(rest[len(rest)-1], "ecc") {
		req.ECC = true
		rest = rest[:len(rest)-1]
	}
	if len(rest) > 0 {
		payload, err := hex.DecodeString(strings.Join(rest, ""))
		if err != nil {
			c.log.Warn("控制台行载荷不是十六进制", zap.String("line", line))
			return SubmitRequest{}, false
		}
		req.Payload = payload
	}
	return req, true
}
