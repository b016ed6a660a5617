// Package config loads device configuration. A TOML file has the lowest
// priority, environment variables override it, and command-line flags
// applied by the caller override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	sbd "github.com/behrlich/go-sbd"
	"github.com/behrlich/go-sbd/internal/logging"
)

// DefaultPath is read when no path is given. It does not need to exist.
const DefaultPath = "/etc/sbd/config.toml"

// Config is the file and environment configuration for one device
type Config struct {
	SectorSize  uint32 `toml:"sector_size" env:"SBD_SECTOR_SIZE" env-default:"512" env-description:"Logical sector size in bytes."`
	SectorCount uint64 `toml:"sector_count" env:"SBD_SECTOR_COUNT" env-default:"1024" env-description:"Device capacity in sectors."`
	Size        string `toml:"size" env:"SBD_SIZE" env-default:"" env-description:"Device capacity as a size such as 512K or 64M. Overrides the sector count."`
	DeviceName  string `toml:"device_name" env:"SBD_DEVICE_NAME" env-default:"simple_block" env-description:"Name the major number is registered under."`
	DiskName    string `toml:"disk_name" env:"SBD_DISK_NAME" env-default:"sbd0" env-description:"Name of the exposed disk."`
	Minors      int    `toml:"minors" env:"SBD_MINORS" env-default:"16" env-description:"Minor numbers reserved for the disk."`
	RangePolicy string `toml:"range_policy" env:"SBD_RANGE_POLICY" env-default:"drop" env-description:"Out-of-range chunks: drop (complete without transfer) or fail."`

	Log struct {
		Level  string `toml:"level" env:"SBD_LOG_LEVEL" env-default:"info" env-description:"Log level: debug, info, warn or error."`
		Format string `toml:"format" env:"SBD_LOG_FORMAT" env-default:"text" env-description:"Log format: text or json."`
	} `toml:"log"`
}

// Load reads path, if it exists, then the environment. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

// Describe returns the environment variables understood by Load
func Describe() string {
	header := "Environment variables:"
	text, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return ""
	}
	return text
}

// Params converts the configuration into device parameters
func (c *Config) Params() (sbd.Params, error) {
	p := sbd.DefaultParams()
	p.SectorSize = c.SectorSize
	p.SectorCount = c.SectorCount
	p.DeviceName = c.DeviceName
	p.DiskName = c.DiskName
	p.Minors = c.Minors

	if c.Size != "" {
		size, err := ParseSize(c.Size)
		if err != nil {
			return p, fmt.Errorf("size %q: %w", c.Size, err)
		}
		if c.SectorSize == 0 || size%uint64(c.SectorSize) != 0 {
			return p, fmt.Errorf("size %s is not a multiple of the %d byte sector size", FormatSize(size), c.SectorSize)
		}
		p.SectorCount = size / uint64(c.SectorSize)
	}

	policy, err := sbd.ParsePolicy(c.RangePolicy)
	if err != nil {
		return p, err
	}
	p.RangePolicy = policy
	return p, nil
}

// Logging returns the logger configuration
func (c *Config) Logging() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// ParseSize parses a size string like "64M", "1G", "512K" or "4096"
func ParseSize(s string) (uint64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	var multiplier uint64 = 1
	numStr := s
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		numStr = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		numStr = strings.TrimSuffix(s, "T")
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	if num > math.MaxUint64/multiplier {
		return 0, fmt.Errorf("size %s overflows", s)
	}
	return num * multiplier, nil
}

// FormatSize formats a byte count as a human-readable string
func FormatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
