package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/comms"
)

func TestLocalStorageWrite(t *testing.T) {
	dir := t.TempDir()
	p, err := NewLocal(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.StorageWrite(0x10, []byte{0xAA, 0xBB}))
	require.NoError(t, p.StorageWrite(0x00, []byte{0x01}))

	data, err := os.ReadFile(filepath.Join(dir, "nvm.bin"))
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), data[0x00])
	assert.Equal(t, byte(0xAA), data[0x10])
	assert.Equal(t, byte(0xBB), data[0x11])
}

func TestLocalEventsAreNoops(t *testing.T) {
	p, err := NewLocal(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, p.Notify(comms.NotifyTLEUpdated))
	assert.NoError(t, p.Reboot(comms.RebootADCS))
	assert.NoError(t, p.VarChange([]byte{0x01, 0x02}))
	assert.NoError(t, p.Crystal(1, 2, 3, 600))
}
