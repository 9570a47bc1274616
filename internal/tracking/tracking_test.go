package tracking

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanged(t *testing.T) {
	st := State{}
	url := "https://example.org/twic1500g.zip"
	assert.True(t, st.Changed("twic", url, "Mon, 01 Jan 2024 00:00:00 GMT", `"abc"`), "never fetched")

	st.Fetched("twic", url, "Mon, 01 Jan 2024 00:00:00 GMT", `"abc"`, 812, time.Now())

	tests := []struct {
		name     string
		modified string
		etag     string
		want     bool
	}{
		{"same", "Mon, 01 Jan 2024 00:00:00 GMT", `"abc"`, false},
		{"new modified", "Tue, 02 Jan 2024 00:00:00 GMT", `"abc"`, true},
		{"new etag", "Mon, 01 Jan 2024 00:00:00 GMT", `"def"`, true},
		{"no validators", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, st.Changed("twic", url, tt.modified, tt.etag))
		})
	}
	assert.True(t, st.Changed("lichess", url, "x", "y"))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")

	empty, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, empty)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := State{}
	st.Checked("twic", at)
	st.Fetched("twic", "u1", "m", "e", 10, at)
	st.Checked("pgnmentor", at)
	require.NoError(t, st.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pgnmentor", "twic"}, back.Names())
	assert.Equal(t, 10, back["twic"].Files["u1"].Records)
	assert.True(t, back["twic"].LastChecked.Equal(at))
	assert.NotNil(t, back["pgnmentor"].Files)
	assert.False(t, back.Changed("twic", "u1", "m", "e"))
}
