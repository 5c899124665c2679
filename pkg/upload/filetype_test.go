package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		wantOK   bool
		wantType string
	}{
		{"pdf accepted", "report.pdf", true, ""},
		{"case insensitive", "REPORT.PDF", true, ""},
		{"markdown accepted", "notes.md", true, ""},
		{"keynote accepted", "deck.keynote", true, ""},
		{"denied binary", "malware.exe", false, "EXE file"},
		{"denied media", "song.mp3", false, "MP3 file"},
		{"denied archive", "backup.tar", false, "TAR file"},
		{"unknown extension", "weird.xyz", false, "XYZ file"},
		{"no extension", "README", false, "unknown"},
		{"trailing dot", "strange.", false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileName(tt.fileName)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			var unsupported *UnsupportedTypeError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, tt.wantType, unsupported.FileType)
			assert.NotEmpty(t, unsupported.Message)
		})
	}
}

func TestDeniedAndUnknownMessagesDiffer(t *testing.T) {
	denied := ValidateFileName("a.exe").(*UnsupportedTypeError)
	unknown := ValidateFileName("a.xyz").(*UnsupportedTypeError)
	assert.NotEqual(t, denied.Message, unknown.Message)
}

func TestSupportedTypesSortedAndComplete(t *testing.T) {
	types := SupportedTypes()
	require.Len(t, types, len(supportedExtensions))

	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1].Extension, types[i].Extension)
	}
	for _, st := range types {
		assert.NotEmpty(t, st.Description)
	}
}
