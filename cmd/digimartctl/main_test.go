package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCtl(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestCtl(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URI", filepath.Join(dir, "digimart.db")+"?_pragma=busy_timeout(5000)&_time_format=sqlite")
	t.Setenv("ASSETS_DIR", filepath.Join(dir, "assets"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "error")

	file := filepath.Join(dir, "kit.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.4"), 0o600))

	out := runCtl(t, "listing", "add", file, "--seller", "seller-1", "--price", "500")
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 4)
	listingID := fields[0]
	require.Equal(t, "kit.pdf", fields[1])
	require.Equal(t, "500", fields[2])

	_, err := os.Stat(filepath.Join(dir, "assets", filepath.FromSlash(fields[3])))
	require.NoError(t, err)

	// цена точнее копейки не округляется молча
	cmd := newRootCmd()
	cmd.SetArgs([]string{"listing", "add", file, "--seller", "seller-1", "--price", "9.999"})
	cmd.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, cmd.Execute(), "decimal places")

	out = runCtl(t, "listing", "show", listingID)
	require.Contains(t, out, "sales:   0")

	out = runCtl(t, "recount")
	require.Contains(t, out, "recounted")

	out = runCtl(t, "token", "buyer-1")
	require.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")))

	cmd = newRootCmd()
	cmd.SetArgs([]string{"refund", "ref-unknown"})
	cmd.SetOut(&bytes.Buffer{})
	require.Error(t, cmd.Execute())
}
