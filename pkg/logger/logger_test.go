package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "PSabcdef...", MaskSecret("PSabcdefghijklmnop", 8))
	assert.Equal(t, "ab...", MaskSecret("abcd", 8))
	assert.Equal(t, "", MaskSecret("   ", 8))
	assert.Equal(t, "...", MaskSecret("secret", 0))
}

func TestInitWritesToFile(t *testing.T) {
	old := Logger
	t.Cleanup(func() { Logger = old })

	path := filepath.Join(t.TempDir(), "logs", "kis.log")
	require.NoError(t, Init(Config{Level: "info", OutputFile: path, MaxSize: 1}))
	assert.Equal(t, path, GetCurrentLogFile())

	Infof("token issued for %s", "PSabc...")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "token issued for PSabc...")
}

func TestInitInvalidLevelFallsBackToWarn(t *testing.T) {
	old := Logger
	t.Cleanup(func() { Logger = old })

	require.NoError(t, Init(Config{Level: "chatty"}))
	assert.Equal(t, logrus.WarnLevel, Logger.GetLevel())
}

func TestWithFieldsUsesGlobalLogger(t *testing.T) {
	old := Logger
	t.Cleanup(func() { Logger = old })

	Logger = newDefaultLogger()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("debug")

	WithFields(logrus.Fields{"tr_id": "FHKST01010100"}).Debug("call")
	assert.Contains(t, buf.String(), "tr_id=FHKST01010100")
}
