package comms

import (
	"bufio"
	"context"
	"encoding/hex"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
)

// 地检串口控制台的会话令牌
const (
	serialCommit  = "go"
	serialDiscard = "end"
)

// ServeConsole 读取地检串口的文本行并送入状态机。
// 每行要么是十六进制帧，要么是会话令牌，空行忽略。
// 行缓冲满时丢弃并告警，不阻塞读循环
func (t *Task) ServeConsole(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case t.serialLines <- line:
		default:
			t.log.Warn("控制台行缓冲已满，丢弃", zap.String("line", line))
		}
	}
	return sc.Err()
}

// stepSerial 处理积压的控制台行，行与行之间限速
func (t *Task) stepSerial(ctx context.Context) {
	defer t.setPhase(PhaseIdle)

	if t.hasPending {
		t.hasPending = false
		t.handleSerialLine(t.pendingLine)
	}
	for {
		select {
		case line := <-t.serialLines:
			if err := t.serialLimiter.Wait(ctx); err != nil {
				return
			}
			t.handleSerialLine(line)
		default:
			return
		}
	}
}

// handleSerialLine 十六进制行先缓冲，收到 go 才整体提交到发送队列，
// 收到 end 放弃本批。缓冲上限与指令队列一致
func (t *Task) handleSerialLine(line string) {
	switch strings.ToLower(line) {
	case serialCommit:
		for _, frame := range t.serialBuf {
			p, err := satlink.Unmarshal(frame)
			if err != nil {
				t.log.Warn("控制台帧校验失败，跳过",
					zap.String("state", p.State.String()))
				continue
			}
			if !t.txq.Push(p) {
				t.met.TXDropTotal.WithLabelValues("queue_full").Inc()
				t.log.Warn("控制台帧入队失败，发送队列已满")
			}
		}
		t.serialBuf = nil
	case serialDiscard:
		t.serialBuf = nil
		t.log.Info("控制台批次已放弃")
	default:
		data, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
		if err != nil {
			t.log.Warn("控制台行不是十六进制", zap.String("line", line))
			return
		}
		if len(t.serialBuf) >= CmdQueueCap {
			t.log.Warn("控制台缓冲已满，丢弃一行")
			return
		}
		t.serialBuf = append(t.serialBuf, data)
	}
}
