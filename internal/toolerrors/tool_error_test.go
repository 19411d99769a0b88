package toolerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/toolerrors"
)

func TestFromErrorReusesExistingChain(t *testing.T) {
	base := toolerrors.New("boom").WithCode("timeout")
	wrapped := toolerrors.FromError(base)
	require.Same(t, base, wrapped)
}

func TestFromErrorWrapsPlainError(t *testing.T) {
	err := errors.New("disk full")
	te := toolerrors.FromError(err)
	require.NotNil(t, te)
	assert.Equal(t, "disk full", te.Message)
	assert.Nil(t, te.Cause)
}

func TestUnwrapChain(t *testing.T) {
	inner := toolerrors.New("path escapes sandbox").WithCode("path_escape")
	outer := toolerrors.NewWithCause("write_file failed", inner)
	assert.True(t, errors.Is(outer, outer))
	var te *toolerrors.ToolError
	require.True(t, errors.As(outer, &te))
	assert.Equal(t, "write_file failed", te.Message)
	assert.Equal(t, inner, te.Cause)
}
