package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kory-ai/workbench-core/internal/config"
)

func TestSafetyDefaultsApplyWhenUnset(t *testing.T) {
	var s config.SafetyConfig
	assert.Equal(t, config.DefaultMaxTokensPerTurn, s.MaxTokens())
	assert.Equal(t, int64(0), s.MaxFileSizeBytes)
}

func TestInteractionMaxQuestionsClampedToFour(t *testing.T) {
	i := config.InteractionConfig{MaxClarifyQuestions: 10}
	assert.Equal(t, 4, i.MaxQuestions())

	i = config.InteractionConfig{}
	assert.Equal(t, 4, i.MaxQuestions())

	i = config.InteractionConfig{MaxClarifyQuestions: 2}
	assert.Equal(t, 2, i.MaxQuestions())
}

func TestClassifyDomainPrefersMoreSpecificKeywords(t *testing.T) {
	assert.Equal(t, config.DomainTest, config.ClassifyDomain("write a unit test for the parser"))
	assert.Equal(t, config.DomainFrontend, config.ClassifyDomain("fix the CSS on the login component"))
	assert.Equal(t, config.DomainBackend, config.ClassifyDomain("add a new database migration"))
	assert.Equal(t, config.DomainGeneral, config.ClassifyDomain("make it better"))
}
