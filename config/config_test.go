package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[auto_resize]
min_size = 1048576
initial_size = 2097152
max_size = 16777216
min_clean_fraction = 0.5
increment_mode = "threshold"
increment = 1.5
max_increment = 4194304
lower_hr_threshold = 0.3
decrement_mode = "threshold"
decrement = 0.9
upper_hr_threshold = 0.95
flash_increment_enabled = true
flash_threshold = 0.5
flash_multiple = 2.0
epoch_length = 1000
evictions_enabled = true

[free_space]
merge_with_returned_space = true
shrink_at_close = true

[cache_image]
enabled = false
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.AutoResize.MinSize)
	assert.Equal(t, IncrementThreshold, cfg.AutoResize.IncrementMode)
	assert.True(t, cfg.FreeSpace.MergeWithReturnedSpace)
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	bad := strings.Replace(sampleTOML, "min_size = 1048576", "min_size = 99999999999", 1)
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestLoadRejectsEvictionsDisabledWithActiveMode(t *testing.T) {
	bad := strings.Replace(sampleTOML, "evictions_enabled = true", "evictions_enabled = false", 1)
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}
