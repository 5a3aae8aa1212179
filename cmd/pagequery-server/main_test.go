package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chromedp/pagequery"
	"github.com/chromedp/pagequery/client"
)

const testPage = `<!doctype html>
<html><body>
<p id="greeting">Hello <b>world</b></p>
<label for="name">Name</label><input id="name">
<select id="pick"><option>A</option><option>B</option></select>
</body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// executeNoRun executes the root command with args, without running the
// server, and returns the decoded config.
func executeNoRun(t *testing.T, args ...string) (*config, error) {
	t.Helper()
	cmd, cfg := newRootCmd()
	cmd.RunE = func(*cobra.Command, []string) error {
		return nil
	}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cfg, err
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := executeNoRun(t)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9333", cfg.Listen)
	assert.Equal(t, pagequery.DefaultFrameInterval, cfg.FrameInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
}

func TestConfigPrecedence(t *testing.T) {
	cfgFile := writeFile(t, "pagequery.yaml", `
listen: 127.0.0.1:7000
device: iPhone X
frame-interval: 8ms
log-level: warn
`)
	t.Setenv("PAGEQUERY_LOG_LEVEL", "debug")
	t.Setenv("PAGEQUERY_HTML", "/srv/page.html")

	cfg, err := executeNoRun(t, "--config", cfgFile, "--listen", "127.0.0.1:7001")
	require.NoError(t, err)

	// flags win over env, env wins over the config file
	assert.Equal(t, "127.0.0.1:7001", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/page.html", cfg.HTML)
	assert.Equal(t, "iPhone X", cfg.Device)
	assert.Equal(t, 8*time.Millisecond, cfg.FrameInterval)
}

func TestConfigFileError(t *testing.T) {
	t.Parallel()
	cfgFile := writeFile(t, "broken.yaml", "listen: [")
	_, err := executeNoRun(t, "--config", cfgFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read config file")
}

func TestLoadDocumentErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  config
		want string
	}{
		{"no html", config{}, "no HTML document"},
		{"missing file", config{HTML: filepath.Join(t.TempDir(), "missing.html")}, "missing.html"},
		{"unknown device", config{HTML: "-", Device: "Nokia 3310"}, `unknown device "Nokia 3310"`},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadDocument(&test.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
		})
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	cfg := &config{
		Listen:        "127.0.0.1:0",
		HTML:          writeFile(t, "page.html", testPage),
		FrameInterval: 5 * time.Millisecond,
		Debug:         true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrc := make(chan net.Addr, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- run(ctx, cfg, zaptest.NewLogger(t), func(addr net.Addr) {
			addrc <- addr
		})
	}()

	var addr net.Addr
	select {
	case addr = <-addrc:
	case err := <-errc:
		t.Fatalf("server exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	cl, err := client.Dial(ctx, client.URL("ws://"+addr.String()+"/"))
	require.NoError(t, err)

	id, ok, err := cl.QuerySelector(ctx, "#greeting", 0, true)
	require.NoError(t, err)
	require.True(t, ok)

	preview, err := cl.PreviewNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `<p id="greeting">…</p>`, preview)

	node, err := cl.DescribeNode(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "P", node.NodeName)
	assert.Equal(t, []string{"id", "greeting"}, node.Attributes)
	assert.Len(t, node.Children, 2)

	_, ok, err = cl.QuerySelector(ctx, "#missing", 0, false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cl.WaitForSelector(ctx, "#missing", pagequery.StateDetached, pagequery.Params{})
	require.NoError(t, err)
	assert.True(t, ok)

	name, _, err := cl.QuerySelector(ctx, "#name", 0, true)
	require.NoError(t, err)
	states := []pagequery.ElementState{pagequery.StateVisible, pagequery.StateEnabled}
	require.NoError(t, cl.WaitForElementStates(ctx, name, states, pagequery.Params{}))

	label, ok, err := cl.QuerySelector(ctx, "text=Name", 0, false)
	require.NoError(t, err)
	require.True(t, ok)
	out, err := cl.Fill(ctx, label, "  Ada ")
	require.NoError(t, err)
	assert.Equal(t, pagequery.OutcomeDone, out)

	pick, _, err := cl.QuerySelector(ctx, "#pick", 0, false)
	require.NoError(t, err)
	label2 := "B"
	values, err := cl.SelectOptions(ctx, pick, pagequery.OptionParam{Label: &label2})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, values)

	// error tags are results
	_, err = cl.Fill(ctx, id, "x")
	assert.ErrorIs(t, err, pagequery.ErrNotFillableElement)

	// thrown errors are response errors
	var rerr *pagequery.ResponseError
	_, _, err = cl.QuerySelector(ctx, "option", 0, true)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "strictmodeviolation", rerr.Kind)

	timeout := int64(50)
	_, _, err = cl.WaitForSelector(ctx, "#late", pagequery.StateAttached, pagequery.Params{Timeout: &timeout})
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "timeout", rerr.Kind)

	require.NoError(t, cl.Close())
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
