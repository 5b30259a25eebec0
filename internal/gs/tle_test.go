package gs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLine1 = "1 25544U 98067A   24001.50000000  .00016717  00000-0  10270-3 0  9000"
	testLine2 = "2 25544  51.6400 208.9163 0006317  69.9862 290.2000 15.49560000  1000"
)

func TestTLEChunks(t *testing.T) {
	tle := &TLE{Name: "TESTSAT", Line1: testLine1, Line2: testLine2}

	chunks, err := tle.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, tleChunkCount)

	// 每个载荷为 1 字节分片号加定长数据
	var joined []byte
	for i, c := range chunks {
		assert.Len(t, c, 1+tleChunkSize)
		assert.Equal(t, byte(i+1), c[0])
		joined = append(joined, c[1:]...)
	}

	// 拼接后前缀恢复出原始两行
	want := testLine1 + "\n" + testLine2 + "\n"
	assert.Equal(t, want, string(joined[:len(want)]))

	// 其余为零填充
	for _, b := range joined[len(want):] {
		assert.Equal(t, byte(0), b)
	}
}

func TestTLEValidateRejectsBadLines(t *testing.T) {
	cases := []struct {
		name string
		tle  TLE
	}{
		{"line1太短", TLE{Line1: "1 25544U", Line2: testLine2}},
		{"line1前缀错误", TLE{Line1: "3" + testLine1[1:], Line2: testLine2}},
		{"line2太短", TLE{Line1: testLine1, Line2: "2 25544"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.tle.Validate())
		})
	}
}

func TestTLEValidateTrimsTrailingSpace(t *testing.T) {
	tle := &TLE{Line1: testLine1 + "\r\n", Line2: testLine2 + "  "}
	require.NoError(t, tle.Validate())
	assert.Equal(t, testLine1, tle.Line1)
}

func TestParseTLEYAML(t *testing.T) {
	doc := strings.Join([]string{
		"name: TESTSAT",
		`line1: "` + testLine1 + `"`,
		`line2: "` + testLine2 + `"`,
	}, "\n")

	tle, err := ParseTLEYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "TESTSAT", tle.Name)
	assert.Equal(t, testLine1, tle.Line1)

	_, err = ParseTLEYAML([]byte("line1: bogus"))
	assert.Error(t, err)

	_, err = ParseTLEYAML([]byte("{not yaml"))
	assert.Error(t, err)
}
