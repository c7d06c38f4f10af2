package streamerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationfIsValidation(t *testing.T) {
	err := Validationf("unknown interval %q", "9m")
	assert.True(t, IsValidation(err))
	assert.False(t, IsLookup(err))
	assert.Equal(t, `unknown interval "9m"`, err.Error())
}

func TestLookupfCarriesSource(t *testing.T) {
	err := Lookupf("binance", "unexpected status %d", 503)
	assert.True(t, IsLookup(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "binance: unexpected status 503", err.Error())
}

func TestLookupfWithoutSource(t *testing.T) {
	err := Lookupf("", "no data available")
	assert.Equal(t, "no data available", err.Error())
}
