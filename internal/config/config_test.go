package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sbd "github.com/behrlich/go-sbd"
	"github.com/behrlich/go-sbd/internal/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, uint32(512), cfg.SectorSize)
	assert.Equal(t, uint64(1024), cfg.SectorCount)
	assert.Equal(t, "simple_block", cfg.DeviceName)
	assert.Equal(t, "sbd0", cfg.DiskName)
	assert.Equal(t, 16, cfg.Minors)
	assert.Equal(t, "drop", cfg.RangePolicy)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, sbd.DefaultParams(), p)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sbd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
sector_size = 4096
disk_name = "ram7"
range_policy = "fail"

[log]
level = "debug"
format = "json"
`), 0o644))

	t.Setenv("SBD_SIZE", "1M")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), cfg.SectorSize)
	assert.Equal(t, "ram7", cfg.DiskName)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, uint64(256), p.SectorCount)
	assert.Equal(t, sbd.PolicyFail, p.RangePolicy)

	lc := cfg.Logging()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("sector_size = [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParamsErrors(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Size = "1000"
	_, err = cfg.Params()
	assert.Error(t, err, "not a sector multiple")

	cfg.Size = "lots"
	_, err = cfg.Params()
	assert.Error(t, err)

	cfg.Size = ""
	cfg.RangePolicy = "ignore"
	_, err = cfg.Params()
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"4096", 4096},
		{"512K", 512 << 10},
		{"64M", 64 << 20},
		{"64mb", 64 << 20},
		{"1G", 1 << 30},
		{"2T", 2 << 40},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "K", "-1M", "1.5G", "99999999999T"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "512.0 KB", FormatSize(512<<10))
	assert.Equal(t, "64.0 MB", FormatSize(64<<20))
	assert.Equal(t, "1.5 GB", FormatSize(3<<29))
	assert.Equal(t, "2048.0 TB", FormatSize(2<<50))
}

func TestDescribe(t *testing.T) {
	text := Describe()
	assert.Contains(t, text, "SBD_SECTOR_SIZE")
	assert.Contains(t, text, "SBD_RANGE_POLICY")
}
