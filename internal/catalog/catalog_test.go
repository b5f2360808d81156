package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFormats(t *testing.T) {
	want := types.SchoolCatalog{
		{Name: "A", Country: "VN", Logo: "/a.png", Programs: []types.Program{{Name: "CS"}}},
		{Name: "B", Country: "US", Logo: "/b.png", Programs: []types.Program{{Name: "MBA"}}},
	}

	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "catalog.yaml",
			body: `
- name: A
  country: VN
  logo: /a.png
  programs: [{name: CS}]
- name: B
  country: US
  logo: /b.png
  programs: [{name: MBA}]
`,
		},
		{
			name: "toml",
			file: "catalog.toml",
			body: `
[[schools]]
name = "A"
country = "VN"
logo = "/a.png"
  [[schools.programs]]
  name = "CS"

[[schools]]
name = "B"
country = "US"
logo = "/b.png"
  [[schools.programs]]
  name = "MBA"
`,
		},
		{
			name: "json",
			file: "catalog.json",
			body: `[
{"name":"A","country":"VN","logo":"/a.png","programs":[{"name":"CS"}]},
{"name":"B","country":"US","logo":"/b.png","programs":[{"name":"MBA"}]}
]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(write(t, tt.file, tt.body))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(write(t, "empty.yaml", "[]"))
	require.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = Load(write(t, "noprog.yaml", "- {name: A, country: VN}"))
	require.Error(t, err)

	_, err = Load(write(t, "dup.yaml", `
- {name: A, country: VN, programs: [{name: CS}]}
- {name: A, country: US, programs: [{name: CS}]}
`))
	require.Error(t, err)

	_, err = Load(write(t, "catalog.xml", "<x/>"))
	require.Error(t, err)
}

func TestCountriesKeepsFirstSeenOrder(t *testing.T) {
	schools := types.SchoolCatalog{
		{Name: "A", Country: "VN"},
		{Name: "B", Country: "US"},
		{Name: "C", Country: "VN"},
	}
	assert.Equal(t, []string{"VN", "US"}, Countries(schools))
}

func TestShippedCatalogLoads(t *testing.T) {
	schools, err := Load(filepath.Join("..", "..", "config", "catalog.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, schools)
}
