package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonkersai/website/cmd/siteadmin/cmd"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	dir string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JONKERSAI_ENV", "TEST")
	t.Setenv("JONKERSAI_LOG_LEVEL", "error")
	t.Setenv("JONKERSAI_STORE_DRIVER", "sqlite")
	t.Setenv("JONKERSAI_STORE_DSN", filepath.Join(dir, "site.db"))
	t.Setenv("JONKERSAI_PROVIDER_KIND", "gotrue")
	// nothing listens here, so every sign-in falls back to the credentials table
	t.Setenv("JONKERSAI_PROVIDER_URL", "http://127.0.0.1:1")
	t.Setenv("JONKERSAI_BASE_URL", "https://jonkersai.nl")
	return &testFixture{dir: dir}
}

func (f *testFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "sqlite store is up to date")

	// a second run is a no-op
	_, err = f.run(t, "", "migrate")
	require.NoError(t, err)
}

func TestMigrate_RejectsRESTDriver(t *testing.T) {
	f := setupTestFixture(t)
	t.Setenv("JONKERSAI_STORE_DRIVER", "rest")

	_, err := f.run(t, "", "migrate")
	require.Error(t, err)
}

func TestCredentialAddThenSignIn(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "Secret123\n", "credential", "add", "editor@example.com", "--name", "Editor")
	require.NoError(t, err)
	require.Contains(t, out, "added editor@example.com")
	require.Contains(t, out, "admin=false")

	out, err = f.run(t, "Secret123\n", "signin", "editor@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "state:   logged_in_user")
	require.Contains(t, out, "admin:   false")
	require.Contains(t, out, "credentials table")

	_, err = f.run(t, "wrong-password\n", "signin", "editor@example.com")
	require.EqualError(t, err, "invalid email or password")
}

func TestCredentialAdd_WeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "short\n", "credential", "add", "editor@example.com")
	require.Error(t, err)
}

func TestSignIn_AdminFlag(t *testing.T) {
	f := setupTestFixture(t)
	t.Setenv("JONKERSAI_AUTH_PASSWORD_STORAGE", "bcrypt")

	_, err := f.run(t, "Secret123\n", "credential", "add", "owner@example.com", "--admin")
	require.NoError(t, err)

	out, err := f.run(t, "Secret123\n", "signin", "owner@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "state:   logged_in_admin")
}

func TestCheckAdmin(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "Secret123\n", "credential", "add", "editor@example.com")
	require.NoError(t, err)

	out, err := f.run(t, "", "check-admin", "jan@jonkersai.nl")
	require.NoError(t, err)
	require.Equal(t, "jan@jonkersai.nl: admin\n", out)

	out, err = f.run(t, "", "check-admin", "editor@example.com")
	require.NoError(t, err)
	require.Equal(t, "editor@example.com: not admin\n", out)
}

func TestPasswd(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "Secret123\n", "credential", "add", "editor@example.com")
	require.NoError(t, err)

	_, err = f.run(t, "Secret123\nNewSecret456\nOtherSecret789\n", "passwd", "editor@example.com")
	require.EqualError(t, err, "new passwords do not match")

	_, err = f.run(t, "Wrong123\nNewSecret456\nNewSecret456\n", "passwd", "editor@example.com")
	require.EqualError(t, err, "current password is incorrect")

	out, err := f.run(t, "Secret123\nNewSecret456\nNewSecret456\n", "passwd", "editor@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "password updated")

	_, err = f.run(t, "Secret123\n", "signin", "editor@example.com")
	require.Error(t, err)
	_, err = f.run(t, "NewSecret456\n", "signin", "editor@example.com")
	require.NoError(t, err)
}

func TestSitemap(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "sitemap")
	require.NoError(t, err)
	require.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	require.Contains(t, out, "<loc>https://jonkersai.nl/</loc>")

	path := filepath.Join(f.dir, "sitemap.xml")
	_, err = f.run(t, "", "sitemap", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "<urlset")
}
