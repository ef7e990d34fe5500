package app

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netban/internal/config"
	"netban/internal/firewall"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("engine failure")))
	assert.Equal(t, 2, ExitCode(&UsageError{Err: errors.New("unknown flag")}))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", &UsageError{Err: errors.New("bad args")})))
}

func TestExactArgsClassifiesUsage(t *testing.T) {
	cmd := &cobra.Command{Use: "ban"}
	err := exactArgs(1)(cmd, []string{})

	var ue *UsageError
	assert.ErrorAs(t, err, &ue)
	assert.NoError(t, exactArgs(1)(cmd, []string{"speedtest"}))
}

func TestConfiguredAction(t *testing.T) {
	assert.Equal(t, firewall.ActionDrop, configuredAction(&config.Config{Action: "drop"}))
	assert.Equal(t, firewall.ActionReject, configuredAction(&config.Config{Action: "reject"}))
}

// runLists executes the lists command against a config file the way main.go
// wires it: persistent --config flag on the root.
func runLists(t *testing.T, cfgYAML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o644))

	root := &cobra.Command{Use: "netban"}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(NewListsCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"lists", "--config", path})
	require.NoError(t, root.Execute())
	return buf.String()
}

func TestListsPrintsInlineDomains(t *testing.T) {
	out := runLists(t, `
lists:
  speedtest:
    domains:
      - speedtest.net
      - fast.com
`)
	assert.Contains(t, out, "speedtest")
	assert.Contains(t, out, "speedtest.net")
	assert.Contains(t, out, "fast.com")
}

func TestListsPrintsFetchedDomains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "# geo list")
		fmt.Fprintln(w, "blocked.example.com")
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := runLists(t, fmt.Sprintf(`
state_dir: %s
lists:
  geo:
    url: %s
`, dir, srv.URL))
	assert.Contains(t, out, "geo ("+srv.URL+")")
	assert.Contains(t, out, "blocked.example.com")
}

func TestUptimeFormatting(t *testing.T) {
	assert.Equal(t, "0h5m", uptime(300))
	assert.Equal(t, "3h0m", uptime(3*3600))
	assert.Equal(t, "2d1h", uptime(2*86400+3600))
}
