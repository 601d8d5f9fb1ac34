package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAddress_NormalizesBeforeHashing(t *testing.T) {
	a := HashAddress("+1 (415) 555-0100")
	b := HashAddress("whatsapp:+14155550100")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.NotEqual(t, a, HashAddress("+14155550101"))
}
