package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiving-engine/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestResolveMeasurement_KilogramIsIdentity(t *testing.T) {
	for _, q := range []string{"0", "1", "12345.678"} {
		m, err := core.ResolveMeasurement(core.UoMKilogram, dec(q), core.WeightCandidates{Manual: decp("1500")})
		require.NoError(t, err)
		require.NotNil(t, m.KgEquivalent)
		assert.True(t, m.KgEquivalent.Equal(dec(q)), "kg %s", q)
		assert.Nil(t, m.WeightUsed)
		assert.Equal(t, core.WeightSourceNone, m.WeightSource)
	}
}

func TestResolveMeasurement_LitersNeverConverted(t *testing.T) {
	m, err := core.ResolveMeasurement(core.UoMLiter, dec("800"), core.WeightCandidates{
		OrderLine: decp("1.2"), Agreement: decp("1.1"), MaterialDefault: decp("1.0"), Manual: decp("0.9"),
	})
	require.NoError(t, err)
	assert.Nil(t, m.KgEquivalent)
	assert.Nil(t, m.WeightUsed)
}

func TestResolveMeasurement_CubicMeterPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		w      core.WeightCandidates
		kg     string
		source core.WeightSource
	}{
		{
			name:   "order line wins",
			w:      core.WeightCandidates{OrderLine: decp("1500"), Agreement: decp("1600"), MaterialDefault: decp("1700"), Manual: decp("1800")},
			kg:     "15000",
			source: core.WeightSourceOrderLine,
		},
		{
			name:   "agreement when line has none",
			w:      core.WeightCandidates{Agreement: decp("1600"), MaterialDefault: decp("1700"), Manual: decp("1800")},
			kg:     "16000",
			source: core.WeightSourceAgreement,
		},
		{
			name:   "zero line weight is absent",
			w:      core.WeightCandidates{OrderLine: decp("0"), MaterialDefault: decp("1700")},
			kg:     "17000",
			source: core.WeightSourceMaterialDefault,
		},
		{
			name:   "manual as last resort",
			w:      core.WeightCandidates{Manual: decp("1800")},
			kg:     "18000",
			source: core.WeightSourceManual,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := core.ResolveMeasurement(core.UoMCubicMeter, dec("10"), tt.w)
			require.NoError(t, err)
			assert.True(t, m.KgEquivalent.Equal(dec(tt.kg)), "got %s", m.KgEquivalent)
			assert.Equal(t, tt.source, m.WeightSource)
		})
	}
}

func TestResolveMeasurement_LowerPrecedenceDoesNotMatter(t *testing.T) {
	a, err := core.ResolveMeasurement(core.UoMCubicMeter, dec("3"), core.WeightCandidates{OrderLine: decp("1500"), Manual: decp("1")})
	require.NoError(t, err)
	b, err := core.ResolveMeasurement(core.UoMCubicMeter, dec("3"), core.WeightCandidates{OrderLine: decp("1500"), Agreement: decp("9999")})
	require.NoError(t, err)
	assert.True(t, a.KgEquivalent.Equal(*b.KgEquivalent))
}

func TestResolveMeasurement_MissingFactor(t *testing.T) {
	_, err := core.ResolveMeasurement(core.UoMCubicMeter, dec("10"), core.WeightCandidates{})
	assert.ErrorIs(t, err, core.ErrMissingConversionFactor)
}

func TestResolveMeasurement_RejectsBadInput(t *testing.T) {
	_, err := core.ResolveMeasurement(core.UoMKilogram, dec("-1"), core.WeightCandidates{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = core.ResolveMeasurement(core.UoM("ton"), dec("1"), core.WeightCandidates{})
	assert.ErrorIs(t, err, core.ErrValidation)
}
