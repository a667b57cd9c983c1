package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/semsearch/internal/config"
)

func TestTemplate_MatchesDefaults(t *testing.T) {
	// Given: the embedded template decoded onto an empty config
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(Template), &cfg))

	// Then: every value equals the built-in default
	assert.Equal(t, config.NewConfig(), &cfg)
	assert.NoError(t, cfg.Validate())
}

func TestTemplate_IsCommented(t *testing.T) {
	assert.Contains(t, Template, "# semsearch configuration")
}
