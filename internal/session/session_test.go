package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/extract"
)

func TestNewLauncherAppliesDefaults(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "profiles")
	l, err := NewLauncher(Config{ProfileRoot: root}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPortalURL, l.cfg.PortalURL)
	require.Equal(t, 45*time.Second, l.cfg.NavigationTimeout)
	require.Equal(t, 15*time.Second, l.cfg.ActionTimeout)

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestAllocatorOptionsIncludeOptionalFlags(t *testing.T) {
	t.Parallel()

	base, err := NewLauncher(Config{ProfileRoot: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	full, err := NewLauncher(Config{
		ProfileRoot: t.TempDir(),
		UserAgent:   "Mozilla/5.0",
		Proxy:       "socks5://127.0.0.1:9050",
		ExecPath:    "/usr/bin/chromium",
	}, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, full.allocatorOptions("/tmp/p"), len(base.allocatorOptions("/tmp/p"))+3)
}

func TestOrderClickScriptAddressesDataRows(t *testing.T) {
	t.Parallel()

	first := orderClickScript(extract.OrderTable{Selector: "table.order_table"}, 1)
	require.Contains(t, first, `document.querySelectorAll("table.order_table")`)
	require.Contains(t, first, "false ? tables[tables.length - 1]")
	require.Contains(t, first, "rows[0]")

	last := orderClickScript(extract.OrderTable{Selector: "#history_cnr table.order_table", Last: true}, 4)
	require.Contains(t, last, "true ? tables[tables.length - 1]")
	require.Contains(t, last, "rows[3]")
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	script := clickScript(`a[title="x"]`)
	require.Contains(t, script, `document.querySelector("a[title=\"x\"]")`)
	require.Contains(t, textsScript("div#history_cnr span"), `querySelectorAll("div#history_cnr span")`)
	require.Contains(t, displayedScript("#validateError"), `display === 'block'`)
	require.True(t, strings.Contains(attrScript("#modal_order_body object", "data"), `getAttribute("data")`))
}

func TestCloseIsIdempotentAndRemovesProfile(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp(t.TempDir(), "cnr-profile-*")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("x"), 0o600))

	browserCancels, allocCancels := 0, 0
	s := &Session{
		profileDir:    dir,
		browserCancel: func() { browserCancels++ },
		allocCancel:   func() { allocCancels++ },
		logger:        zap.NewNop(),
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, browserCancels)
	require.Equal(t, 1, allocCancels)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestForwardCancelPropagatesParent(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	require.Eventually(t, func() bool { return child.Err() != nil }, time.Second, 5*time.Millisecond)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	require.Equal(t, ":99", displayName(""))
	require.Equal(t, ":42", displayName(":42"))
}
