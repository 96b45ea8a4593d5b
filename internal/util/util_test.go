package util

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePathRollsOver(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	first := logFilePath(dir, now, 1)
	assert.Equal(t, filepath.Join(dir, "skeld_2026-04-02.log"), first)

	require.NoError(t, os.WriteFile(first, bytes.Repeat([]byte("x"), 1024*1024), 0o644))
	assert.Equal(t, filepath.Join(dir, "skeld_2026-04-02.1.log"), logFilePath(dir, now, 1))
	assert.Equal(t, first, logFilePath(dir, now, 0))
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"a.log", "b.log", "c.log", "keep.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}

	cleanOldLogs(dir, 2)

	assert.NoFileExists(t, filepath.Join(dir, "a.log"))
	assert.FileExists(t, filepath.Join(dir, "b.log"))
	assert.FileExists(t, filepath.Join(dir, "c.log"))
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var file bytes.Buffer
	logger := newLogger(&file, nil)
	logger.Info().Str("code", "ABCDEF").Msg("room created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(file.Bytes(), &line))
	assert.Equal(t, "skeld", line["app"])
	assert.Equal(t, "ABCDEF", line["code"])
	assert.Equal(t, "room created", line["message"])
}

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	require.NoError(t, GenerateSelfSignedCert(certFile, keyFile, "skeld.example", "10.0.0.5"))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"localhost", "skeld.example"}, cert.DNSNames)
	assert.Len(t, cert.IPAddresses, 2)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
