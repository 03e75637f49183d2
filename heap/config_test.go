package heap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, defaultNSize, c.NSize)
	assert.Equal(t, defaultVSize, c.VSize)
	assert.Equal(t, defaultProtectStackSize, c.ProtectStackSize)
	assert.Equal(t, 0.2, c.MinFreeFrac)
	assert.Equal(t, 0.5, c.MaxKeepFrac)
	assert.Equal(t, 1, c.PageReleaseFreq)
	assert.Equal(t, 0.70, c.NGrowFrac)
	assert.Equal(t, 0.30, c.NShrinkFrac)
	assert.Equal(t, 40000, c.NGrowIncrMin)
	assert.Equal(t, 80000, c.VGrowIncrMin)
}

func TestConfigOverridesKept(t *testing.T) {
	c := Config{NSize: 1234, MaxKeepFrac: 0.25, Torture: true}.withDefaults()
	assert.Equal(t, 1234, c.NSize)
	assert.Equal(t, 0.25, c.MaxKeepFrac)
	assert.True(t, c.Torture)
	assert.Equal(t, defaultVSize, c.VSize)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"nsize: 5000\nvsize: 1048576\nmax-keep-frac: 0.75\ntorture: true\n"), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, c.NSize)
	assert.Equal(t, 1048576, c.VSize)
	assert.Equal(t, 0.75, c.MaxKeepFrac)
	assert.True(t, c.Torture)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nsize: [not an int]\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "unknown.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no-such-knob: 1\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestHeapHonorsConfiguredSizes(t *testing.T) {
	h := New(Config{NSize: 3000, VSize: 1 << 20})
	var st Stats
	h.ReadStats(&st)
	assert.Equal(t, 3000, st.NSize)
	assert.Equal(t, (1<<20+1)/vecCellBytes, st.VSize)
}
