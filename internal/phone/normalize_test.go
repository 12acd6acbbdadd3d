package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigits(t *testing.T) {
	require.Equal(t, "5511999990001", Digits("+55 (11) 99999-0001"))
	require.Equal(t, "", Digits("abc"))
}

func TestBrazilNormalize(t *testing.T) {
	br := Brazil{}

	canonical, ok := Normalize("+55 11 99999-0001", br)
	require.True(t, ok)
	require.Equal(t, "5511999990001", canonical)

	// National format gets the country code prefixed.
	canonical, ok = Normalize("(11) 99999-0001", br)
	require.True(t, ok)
	require.Equal(t, "5511999990001", canonical)

	// Landline without ninth digit.
	canonical, ok = Normalize("11 3333-0001", br)
	require.True(t, ok)
	require.Equal(t, "551133330001", canonical)

	// Too short and too long are discarded, not guessed at.
	_, ok = Normalize("99999", br)
	require.False(t, ok)
	_, ok = Normalize("5511999990001999", br)
	require.False(t, ok)
}

func TestNormalizeListDeduplicates(t *testing.T) {
	out := NormalizeList([]string{
		"5511999990001",
		"+55 11 99999-0001", // same number, different formatting
		"5511999990002",
		"bogus",
	}, Brazil{})

	require.Equal(t, []string{"5511999990001", "5511999990002"}, out)
}

func TestInternationalNormalize(t *testing.T) {
	intl := International{}
	canonical, ok := Normalize("+1 415 555 0100", intl)
	require.True(t, ok)
	require.Equal(t, "14155550100", canonical)
}
