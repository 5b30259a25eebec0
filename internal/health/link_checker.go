package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketqube-lab/comms-server/internal/comms"
)

// LinkChecker 射频链路健康检查器
type LinkChecker struct {
	task *comms.Task
}

// NewLinkChecker 创建链路健康检查器
func NewLinkChecker(task *comms.Task) *LinkChecker {
	return &LinkChecker{task: task}
}

// Name 返回检查器名称
func (c *LinkChecker) Name() string {
	return "link"
}

// Check 执行健康检查。发射机被地面关闭时视为降级而非故障
func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	txDepth, cmdDepth := c.task.QueueDepths()
	txState := c.task.TXStateSnapshot()

	status := StatusHealthy
	message := "ok"

	if txState == comms.TXOff {
		status = StatusDegraded
		message = "transmitter disabled by ground command"
	}

	txUtil := float64(txDepth) / float64(comms.TXQueueCap)
	if txUtil >= 1.0 {
		status = StatusDegraded
		message = "transmit queue full"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"tx_state":        txState,
			"tx_queue_depth":  txDepth,
			"cmd_queue_depth": cmdDepth,
			"tx_utilization":  fmt.Sprintf("%.1f%%", txUtil*100),
		},
		Latency: time.Since(start),
	}
}
