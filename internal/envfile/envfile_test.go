package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadSetsVariables(t *testing.T) {
	t.Setenv("ENVFILE_TEST_A", "")
	os.Unsetenv("ENVFILE_TEST_A")
	t.Setenv("ENVFILE_TEST_B", "")
	os.Unsetenv("ENVFILE_TEST_B")

	path := writeEnv(t, `
# judge credentials
ENVFILE_TEST_A=alpha
export ENVFILE_TEST_B="beta value"
`)

	require.NoError(t, Load(path))
	assert.Equal(t, "alpha", os.Getenv("ENVFILE_TEST_A"))
	assert.Equal(t, "beta value", os.Getenv("ENVFILE_TEST_B"))
}

func TestLoadDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("ENVFILE_TEST_C", "from-env")
	path := writeEnv(t, "ENVFILE_TEST_C=from-file\n")

	require.NoError(t, Load(path))
	assert.Equal(t, "from-env", os.Getenv("ENVFILE_TEST_C"))
}

func TestLoadMissingFileIsFine(t *testing.T) {
	require.NoError(t, Load(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeEnv(t, "JUST_A_KEY\n")
	err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
