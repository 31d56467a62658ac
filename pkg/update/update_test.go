package update

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "v0.1.4", expected: "0.1.4"},
		{input: "0.1.4", expected: "0.1.4"},
		{input: "vv1.0.0", expected: "v1.0.0"},
		{input: "", expected: ""},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.expected, NormalizeVersion(testCase.input))
	}
}

func TestFindAsset(t *testing.T) {
	r := &ReleaseInfo{
		Assets: []ReleaseAsset{
			{Name: "other.zip", BrowserDownloadURL: "A"},
			{Name: "we-icon-blocks.zip", BrowserDownloadURL: "B"},
		},
		ZipballURL: "Z",
	}
	u, ok := r.FindAsset("we-icon-blocks.zip")
	require.True(t, ok)
	require.Equal(t, "B", u)

	_, ok = r.FindAsset("missing.zip")
	require.False(t, ok)
}

func TestCompatibilityDefaults(t *testing.T) {
	p := &InstalledPluginInfo{}
	require.Equal(t, "6.8.3", p.Tested())
	require.Equal(t, "6.0", p.Requires())
	require.Equal(t, "8.0", p.RequiresPHPVersion())

	p = &InstalledPluginInfo{TestedUpTo: "6.9", RequiresAtLeast: "6.5", RequiresPHP: "8.2"}
	require.Equal(t, "6.9", p.Tested())
	require.Equal(t, "6.5", p.Requires())
	require.Equal(t, "8.2", p.RequiresPHPVersion())
}

func TestTransientSetResponse(t *testing.T) {
	var tr Transient
	tr.SetResponse("a/a.php", &UpdateDescriptor{NewVersion: "1.0.0"})
	require.Equal(t, "1.0.0", tr.Response["a/a.php"].NewVersion)
	tr.SetResponse("a/a.php", &UpdateDescriptor{NewVersion: "1.1.0"})
	require.Len(t, tr.Response, 1)
	require.Equal(t, "1.1.0", tr.Response["a/a.php"].NewVersion)
}
