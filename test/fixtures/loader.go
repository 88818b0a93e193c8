package fixtures

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/scenario"
)

// fixturesDir returns the absolute path to the fixtures directory.
func fixturesDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}

// ScenarioPath returns the absolute path of a fixture scenario such as
// "marketplace" (the .yaml extension is optional).
func ScenarioPath(name string) string {
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	return filepath.Join(fixturesDir(), "scenarios", name)
}

// LoadScenario parses a fixture scenario.
func LoadScenario(t *testing.T, name string) *scenario.File {
	t.Helper()
	f, err := scenario.Load(ScenarioPath(name))
	require.NoError(t, err, "failed to load fixture scenario: %s", name)
	return f
}

// Scenarios lists every fixture scenario by name.
func Scenarios(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(fixturesDir(), "scenarios"))
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok && !e.IsDir() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
