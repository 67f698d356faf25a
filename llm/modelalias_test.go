package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveModel_KnownAlias(t *testing.T) {
	resolved, fellBack, _ := ResolveModel("sonnet")
	require.Equal(t, "claude-sonnet-4-5-20250929", resolved)
	require.False(t, fellBack)
}

func TestResolveModel_FullyQualifiedPassesThrough(t *testing.T) {
	resolved, fellBack, _ := ResolveModel("gpt-4o-mini")
	require.Equal(t, "gpt-4o-mini", resolved)
	require.False(t, fellBack)
}

func TestResolveModel_UnknownFallsBack(t *testing.T) {
	resolved, fellBack, reason := ResolveModel("nonexistent-model-xyz")
	require.Equal(t, DefaultModel, resolved)
	require.True(t, fellBack)
	require.Equal(t, "unsupported_model", reason)
}

func TestResolveModel_EmptyFallsBack(t *testing.T) {
	resolved, fellBack, _ := ResolveModel("")
	require.Equal(t, DefaultModel, resolved)
	require.True(t, fellBack)
}
