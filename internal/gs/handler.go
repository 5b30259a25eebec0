package gs

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/storage"
	"github.com/pocketqube-lab/comms-server/internal/storage/pg"
	redisstorage "github.com/pocketqube-lab/comms-server/internal/storage/redis"
)

// Handler 地面站API处理器
type Handler struct {
	uplinker *Uplinker
	archive  storage.ArchiveRepo
	queue    *redisstorage.UplinkQueue
	link     *redisstorage.LinkCache
	journal  *pg.Journal
	logger   *zap.Logger
}

// NewHandler 创建地面站API处理器
func NewHandler(
	uplinker *Uplinker,
	archive storage.ArchiveRepo,
	queue *redisstorage.UplinkQueue,
	link *redisstorage.LinkCache,
	journal *pg.Journal,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		uplinker: uplinker,
		archive:  archive,
		queue:    queue,
		link:     link,
		journal:  journal,
		logger:   logger,
	}
}

// tecByName 助记名到指令码的反查表
var tecByName = func() map[string]byte {
	m := make(map[string]byte)
	for c := 0; c < 256; c++ {
		if satlink.IsTEC(byte(c)) {
			m[satlink.CommandName(byte(c))] = byte(c)
		}
	}
	return m
}()

// parseCommand 接受助记名（LORA_PING）或数字（26 / 0x1A）
func parseCommand(s string) (byte, bool) {
	if cmd, ok := tecByName[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return cmd, true
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

type submitCommandReq struct {
	Command  string `json:"command" binding:"required"`
	Payload  string `json:"payload"`
	ECC      bool   `json:"ecc"`
	Priority int    `json:"priority"`
}

// SubmitCommand 受理一条上行指令
func (h *Handler) SubmitCommand(c *gin.Context) {
	var req submitCommandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	cmd, ok := parseCommand(req.Command)
	if !ok {
		c.JSON(400, gin.H{"error": "unknown command: " + req.Command})
		return
	}

	var payload []byte
	if req.Payload != "" {
		var err error
		payload, err = hex.DecodeString(strings.ReplaceAll(req.Payload, " ", ""))
		if err != nil {
			c.JSON(400, gin.H{"error": "payload must be hex: " + err.Error()})
			return
		}
	}

	corrID, err := h.uplinker.Submit(c.Request.Context(), SubmitRequest{
		Command:  cmd,
		Payload:  payload,
		ECC:      req.ECC,
		Priority: req.Priority,
	})
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(202, gin.H{
		"correlationId": corrID,
		"command":       satlink.CommandName(cmd),
	})
}

// GetCommand 按关联号查询上行指令状态
func (h *Handler) GetCommand(c *gin.Context) {
	corrID := c.Param("id")

	cmd, err := h.archive.GetUplinkByCorrelation(c.Request.Context(), corrID)
	if err != nil {
		c.JSON(404, gin.H{"error": "command not found"})
		return
	}
	c.JSON(200, gin.H{"command": cmd})
}

// ListCommands 分页查询上行指令
func (h *Handler) ListCommands(c *gin.Context) {
	limit, offset := pageParams(c)

	status := -1
	if v := c.Query("status"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			status = vv
		}
	}

	list, err := h.archive.ListUplinks(c.Request.Context(), int32(status), limit, offset)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"commands": list})
}

// ListTelemetry 分页查询遥测归档
func (h *Handler) ListTelemetry(c *gin.Context) {
	limit, offset := pageParams(c)

	command := -1
	if v := c.Query("command"); v != "" {
		if cmd, ok := parseTelemetryCommand(v); ok {
			command = int(cmd)
		} else {
			c.JSON(400, gin.H{"error": "unknown command: " + v})
			return
		}
	}

	frames, err := h.archive.ListTelemetry(c.Request.Context(), int16(command), limit, offset)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"telemetry": frames})
}

// LatestTelemetry 查询指定指令码最近一帧
func (h *Handler) LatestTelemetry(c *gin.Context) {
	v := c.Query("command")
	if v == "" {
		c.JSON(400, gin.H{"error": "command query parameter required"})
		return
	}
	cmd, ok := parseTelemetryCommand(v)
	if !ok {
		c.JSON(400, gin.H{"error": "unknown command: " + v})
		return
	}

	frame, err := h.archive.LatestTelemetry(c.Request.Context(), int16(cmd))
	if err != nil {
		c.JSON(404, gin.H{"error": "no telemetry for command"})
		return
	}
	c.JSON(200, gin.H{"frame": frame})
}

// LinkStatus 查询最近链路状态
func (h *Handler) LinkStatus(c *gin.Context) {
	if h.link == nil {
		c.JSON(503, gin.H{"error": "link cache disabled"})
		return
	}

	st, err := h.link.Get(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(404, gin.H{"error": "no link data yet"})
		return
	}
	c.JSON(200, gin.H{"link": st})
}

// QueueStats 查询上行队列统计
func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"queue": stats})
}

// RecentJournal 查询最近的帧流水
func (h *Handler) RecentJournal(c *gin.Context) {
	if h.journal == nil {
		c.JSON(503, gin.H{"error": "frame journal disabled"})
		return
	}

	limit, _ := pageParams(c)
	entries, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"journal": entries})
}

// UploadTLE 受理 YAML 格式的两行根数并拆分上行
func (h *Handler) UploadTLE(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	tle, err := ParseTLEYAML(body)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ids, err := h.uplinker.SubmitTLE(c.Request.Context(), tle)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error(), "submitted": ids})
		return
	}

	h.logger.Info("TLE已受理", zap.String("name", tle.Name), zap.Int("chunks", len(ids)))
	c.JSON(202, gin.H{
		"name":           tle.Name,
		"correlationIds": ids,
	})
}

// parseTelemetryCommand 同时接受 TER 助记名与数字
func parseTelemetryCommand(s string) (byte, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for c := 0; c < 256; c++ {
		if satlink.IsKnownCommand(byte(c)) && satlink.CommandName(byte(c)) == up {
			return byte(c), true
		}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil && vv > 0 {
			limit = vv
		}
	}
	if v := c.Query("offset"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil && vv >= 0 {
			offset = vv
		}
	}
	return limit, offset
}
