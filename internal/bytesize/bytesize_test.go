package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "5242880", 5 * MiB, false},
		{"bytes suffix", "1024B", KiB, false},

		// The sizes config files actually carry here.
		{"parent buffer", "1Mi", MiB, false},
		{"memory cap", "2Gi", 2 * GiB, false},
		{"chunk size", "5Mi", 5 * MiB, false},
		{"embed batch budget", "512Ki", 512 * KiB, false},

		{"binary full suffix", "100MiB", 100 * MiB, false},
		{"tebibytes", "1Ti", TiB, false},

		{"decimal kilo", "1K", KB, false},
		{"decimal mega", "100MB", 100 * MB, false},
		{"decimal giga", "1GB", GB, false},
		{"decimal tera", "1TB", TB, false},

		{"lowercase unit", "2gi", 2 * GiB, false},
		{"uppercase unit", "2GI", 2 * GiB, false},
		{"surrounding space", "  1Mi  ", MiB, false},
		{"space before unit", "1 Mi", MiB, false},

		{"fractional mebibytes", "1.5Mi", ByteSize(1.5 * float64(MiB)), false},
		{"fractional gibibytes", "0.5Gi", 512 * MiB, false},

		{"empty string", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"unknown unit", "1Xi", 0, true},
		{"negative", "-1Gi", 0, true},
		{"unit without number", "Gi", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("2Gi")))
	assert.Equal(t, 2*GiB, b)

	assert.Error(t, b.UnmarshalText([]byte("invalid")))
}

func TestString(t *testing.T) {
	tests := []struct {
		input ByteSize
		want  string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{5 * MiB, "5.00MiB"},
		{2 * GiB, "2.00GiB"},
		{ByteSize(1.5 * float64(GiB)), "1.50GiB"},
		{3 * TiB, "3.00TiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.input.String())
	}
}

func TestConversions(t *testing.T) {
	size := 2 * GiB
	assert.Equal(t, uint64(2<<30), size.Uint64())
	assert.Equal(t, int64(2<<30), size.Int64())
}
