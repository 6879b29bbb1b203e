package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/errs"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"demo/seq1/", "demo/seq1"},
		{"/demo//seq1/./a.png", "demo/seq1/a.png"},
		{`demo\seq1`, "demo/seq1"},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"..", "../x", "demo/../../x", `demo\..\..`} {
		_, err := CleanKey(bad)
		assert.True(t, errs.IsInvalidInput(err), bad)
	}
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "demo/seq1/a.png", JoinKey("demo/", "", "/seq1/", "a.png"))
	assert.Equal(t, "", JoinKey("", "/"))
}
