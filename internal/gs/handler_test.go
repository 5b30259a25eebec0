package gs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/storage"
	"github.com/pocketqube-lab/comms-server/internal/storage/models"
)

// fakeArchive 内存归档，仅覆盖测试用到的路径
type fakeArchive struct {
	telemetry []models.TelemetryFrame
	uplinks   map[string]*models.UplinkCommand
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{uplinks: make(map[string]*models.UplinkCommand)}
}

func (f *fakeArchive) WithTx(ctx context.Context, fn func(storage.ArchiveRepo) error) error {
	return fn(f)
}

func (f *fakeArchive) SaveTelemetry(ctx context.Context, frame *models.TelemetryFrame) error {
	f.telemetry = append(f.telemetry, *frame)
	return nil
}

func (f *fakeArchive) ListTelemetry(ctx context.Context, command int16, limit, offset int) ([]models.TelemetryFrame, error) {
	var out []models.TelemetryFrame
	for _, tf := range f.telemetry {
		if command >= 0 && tf.Command != command {
			continue
		}
		out = append(out, tf)
	}
	return out, nil
}

func (f *fakeArchive) LatestTelemetry(ctx context.Context, command int16) (*models.TelemetryFrame, error) {
	for i := len(f.telemetry) - 1; i >= 0; i-- {
		if f.telemetry[i].Command == command {
			return &f.telemetry[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeArchive) CreateUplink(ctx context.Context, cmd *models.UplinkCommand) error {
	f.uplinks[cmd.CorrelationID] = cmd
	return nil
}

func (f *fakeArchive) GetUplinkByCorrelation(ctx context.Context, corrID string) (*models.UplinkCommand, error) {
	cmd, ok := f.uplinks[corrID]
	if !ok {
		return nil, errors.New("not found")
	}
	return cmd, nil
}

func (f *fakeArchive) ListUplinks(ctx context.Context, status int32, limit, offset int) ([]models.UplinkCommand, error) {
	var out []models.UplinkCommand
	for _, cmd := range f.uplinks {
		if status >= 0 && cmd.Status != status {
			continue
		}
		out = append(out, *cmd)
	}
	return out, nil
}

func (f *fakeArchive) MarkUplinkSent(ctx context.Context, corrID string, at time.Time) error {
	f.uplinks[corrID].Status = models.UplinkSent
	return nil
}

func (f *fakeArchive) MarkUplinkAcked(ctx context.Context, corrID string) error {
	f.uplinks[corrID].Status = models.UplinkAcked
	return nil
}

func (f *fakeArchive) MarkUplinkNacked(ctx context.Context, corrID string, code int16) error {
	f.uplinks[corrID].Status = models.UplinkNacked
	return nil
}

func (f *fakeArchive) MarkUplinkFailed(ctx context.Context, corrID string, lastError string) error {
	f.uplinks[corrID].Status = models.UplinkFailed
	return nil
}

func newTestRouter(archive storage.ArchiveRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(nil, archive, nil, nil, nil, zap.NewNop())

	r.GET("/api/v1/commands/:id", h.GetCommand)
	r.GET("/api/v1/commands", h.ListCommands)
	r.GET("/api/v1/telemetry", h.ListTelemetry)
	r.GET("/api/v1/telemetry/latest", h.LatestTelemetry)
	r.GET("/api/v1/link", h.LinkStatus)
	r.GET("/api/v1/journal", h.RecentJournal)
	return r
}

func TestParseCommand(t *testing.T) {
	cmd, ok := parseCommand("LORA_PING")
	require.True(t, ok)
	assert.Equal(t, satlink.TECLoraPing, cmd)

	cmd, ok = parseCommand("lora_ping")
	require.True(t, ok)
	assert.Equal(t, satlink.TECLoraPing, cmd)

	cmd, ok = parseCommand("0x04")
	require.True(t, ok)
	assert.Equal(t, satlink.TECSetTime, cmd)

	cmd, ok = parseCommand("4")
	require.True(t, ok)
	assert.Equal(t, satlink.TECSetTime, cmd)

	_, ok = parseCommand("WARP_DRIVE")
	assert.False(t, ok)

	_, ok = parseCommand("300")
	assert.False(t, ok)
}

func TestGetCommand(t *testing.T) {
	archive := newFakeArchive()
	require.NoError(t, archive.CreateUplink(context.Background(), &models.UplinkCommand{
		CorrelationID: "abc-123",
		Command:       int16(satlink.TECLoraPing),
		CommandName:   "LORA_PING",
	}))
	r := newTestRouter(archive)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/commands/abc-123", nil))
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "abc-123")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/commands/missing", nil))
	assert.Equal(t, 404, w.Code)
}

func TestListTelemetryFiltersByCommand(t *testing.T) {
	archive := newFakeArchive()
	ctx := context.Background()
	require.NoError(t, archive.SaveTelemetry(ctx, &models.TelemetryFrame{Command: int16(satlink.TERBeacon), CommandName: "BEACON", FrameHex: "aa"}))
	require.NoError(t, archive.SaveTelemetry(ctx, &models.TelemetryFrame{Command: int16(satlink.TERAck), CommandName: "ACK", FrameHex: "bb"}))
	r := newTestRouter(archive)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?command=BEACON", nil))
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "BEACON")
	assert.NotContains(t, w.Body.String(), "\"ACK\"")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?command=bogus", nil))
	assert.Equal(t, 400, w.Code)
}

func TestLatestTelemetry(t *testing.T) {
	archive := newFakeArchive()
	ctx := context.Background()
	require.NoError(t, archive.SaveTelemetry(ctx, &models.TelemetryFrame{Command: int16(satlink.TERBeacon), FrameHex: "old"}))
	require.NoError(t, archive.SaveTelemetry(ctx, &models.TelemetryFrame{Command: int16(satlink.TERBeacon), FrameHex: "new"}))
	r := newTestRouter(archive)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/latest?command=0x30", nil))
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "new")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/latest", nil))
	assert.Equal(t, 400, w.Code)
}

func TestDisabledBackendsReturn503(t *testing.T) {
	r := newTestRouter(newFakeArchive())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/link", nil))
	assert.Equal(t, 503, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/journal", nil))
	assert.Equal(t, 503, w.Code)
}
