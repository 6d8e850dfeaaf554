package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Code)
	assert.Equal(t, "840", c.NumericCode)
	assert.Equal(t, int32(2), c.Precision)

	vnd, err := ParseCurrency("VND")
	require.NoError(t, err)
	assert.Equal(t, int32(0), vnd.Precision)

	amd, err := ParseCurrency("amd")
	require.NoError(t, err)
	assert.Equal(t, "051", amd.NumericCode)

	for _, bad := range []string{"", "US", "USDX", "XYZ"} {
		_, err := ParseCurrency(bad)
		assert.ErrorIs(t, err, ErrUnknownCurrency, bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestCurrencyEqualityByCode(t *testing.T) {
	a := MustParseCurrency("eur")
	b := Currency{Code: "EUR"}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(MustParseCurrency("USD")))
}

func TestCurrencyJSON(t *testing.T) {
	data, err := json.Marshal(MustParseCurrency("jpy"))
	require.NoError(t, err)
	assert.Equal(t, `"JPY"`, string(data))

	var c Currency
	require.NoError(t, json.Unmarshal([]byte(`"chf"`), &c))
	assert.Equal(t, "CHF", c.Code)

	assert.ErrorIs(t, json.Unmarshal([]byte(`12`), &c), ErrValidation)
}
