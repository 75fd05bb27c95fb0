package eis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSample() Sample {
	return Sample{
		RowIndex:       0,
		FrequencyHz:    100,
		ROhm:           0.1,
		XOhm:           -0.01,
		TDegC:          25,
		RangeOhm:       1,
		TimestampLocal: time.Now(),
	}
}

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Sample)
		field  string
	}{
		{"valid", func(s *Sample) {}, ""},
		{"negative reactance and temperature are fine", func(s *Sample) { s.XOhm = -3; s.TDegC = -20 }, ""},
		{"zero range is fine", func(s *Sample) { s.RangeOhm = 0 }, ""},
		{"zero frequency", func(s *Sample) { s.FrequencyHz = 0 }, "FrequencyHz"},
		{"negative frequency", func(s *Sample) { s.FrequencyHz = -1 }, "FrequencyHz"},
		{"NaN frequency", func(s *Sample) { s.FrequencyHz = math.NaN() }, "FrequencyHz"},
		{"infinite frequency", func(s *Sample) { s.FrequencyHz = math.Inf(1) }, "FrequencyHz"},
		{"NaN resistance", func(s *Sample) { s.ROhm = math.NaN() }, "R_ohm"},
		{"infinite reactance", func(s *Sample) { s.XOhm = math.Inf(-1) }, "X_ohm"},
		{"NaN temperature", func(s *Sample) { s.TDegC = math.NaN() }, "T_degC"},
		{"negative range", func(s *Sample) { s.RangeOhm = -1 }, "Range_ohm"},
		{"NaN range", func(s *Sample) { s.RangeOhm = math.NaN() }, "Range_ohm"},
		{"negative row index", func(s *Sample) { s.RowIndex = -1 }, "RowIndex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.modify(&s)

			err := ValidateSample(&s)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var invalidErr *InvalidError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, tt.field, invalidErr.Field)
			assert.NotEmpty(t, invalidErr.Reason)
		})
	}
}

func TestValidateSample_DistinctReasons(t *testing.T) {
	modifiers := []func(s *Sample){
		func(s *Sample) { s.FrequencyHz = 0 },
		func(s *Sample) { s.ROhm = math.NaN() },
		func(s *Sample) { s.XOhm = math.NaN() },
		func(s *Sample) { s.TDegC = math.NaN() },
		func(s *Sample) { s.RangeOhm = -1 },
		func(s *Sample) { s.RowIndex = -5 },
	}

	seen := make(map[string]struct{})
	for _, modify := range modifiers {
		s := validSample()
		modify(&s)
		err := ValidateSample(&s)
		require.Error(t, err)
		seen[err.Error()] = struct{}{}
	}
	assert.Len(t, seen, len(modifiers))
}

func TestValidateSample_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateSample(nil), ErrNilInput)
}

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name    string
		meta    *Metadata
		wantErr bool
	}{
		{"valid", &Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 50, TotalRows: 3}, false},
		{"soc lower bound", &Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 0}, false},
		{"soc upper bound", &Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 100}, false},
		{"nil", nil, true},
		{"blank battery", &Metadata{BatteryID: "  ", TestID: "Test_1", SoCPercent: 50}, true},
		{"missing test", &Metadata{BatteryID: "B01", SoCPercent: 50}, true},
		{"soc below range", &Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: -1}, true},
		{"soc above range", &Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 101}, true},
		{"negative plan", &Metadata{BatteryID: "B01", TestID: "Test_1", TotalRows: -1}, true},
		{"battery escapes root", &Metadata{BatteryID: "..", TestID: "Test_1"}, true},
		{"test contains separator", &Metadata{BatteryID: "B01", TestID: "a/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.meta)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetadata_OverQuota(t *testing.T) {
	m := Metadata{TotalRows: 3}

	assert.False(t, m.OverQuota(2, QuotaAdvance))
	assert.True(t, m.OverQuota(3, QuotaAdvance))
	assert.True(t, m.OverQuota(5, QuotaAdvance))
	assert.False(t, m.OverQuota(5, QuotaOff))

	undeclared := Metadata{}
	assert.False(t, undeclared.OverQuota(100, QuotaAdvance))
}

func TestMetadata_Folder(t *testing.T) {
	m := Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 50}
	assert.Equal(t, "root/B01/Test_1/50%", m.Folder("root"))
}

func TestParseQuotaPolicy(t *testing.T) {
	p, err := ParseQuotaPolicy("")
	require.NoError(t, err)
	assert.Equal(t, QuotaAdvance, p)

	p, err = ParseQuotaPolicy("off")
	require.NoError(t, err)
	assert.Equal(t, QuotaOff, p)

	_, err = ParseQuotaPolicy("sometimes")
	assert.Error(t, err)
}
