package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/mrrlens/lens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestData writes the shared CSV fixture into dir
func writeTestData(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "customers.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0644))
	return path
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	app := NewApp()
	app.Out = &out
	app.ApplyOptions(AppOptions{DataFile: writeTestData(t, dir)})
	return app, &out
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Out != os.Stdout {
		t.Error("Out should default to stdout")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   "c.yaml",
		DataFile:     "d.csv",
		SessionCache: "s.json",
		RenderFile:   "r.svg",
		ExportFile:   "e.csv",
		Scope:        "Retail",
		Cohort:       "0-1",
		HttpPort:     9000,
		MqttMode:     true,
		HttpMode:     true,
	})
	assert.Equal(t, "c.yaml", app.ConfigFile)
	assert.Equal(t, "d.csv", app.DataFile)
	assert.Equal(t, "s.json", app.SessionCache)
	assert.Equal(t, "r.svg", app.RenderFile)
	assert.Equal(t, "e.csv", app.ExportFile)
	assert.Equal(t, "Retail", app.Scope)
	assert.Equal(t, "0-1", app.Cohort)
	assert.Equal(t, 9000, app.HttpPort)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
}

func TestHTTPPort(t *testing.T) {
	tests := []struct {
		name       string
		flagPort   int
		flagSet    bool
		configPort int
		want       int
	}{
		{"default flag, no config", defaultHTTPPort, false, 0, defaultHTTPPort},
		{"default flag, config port", defaultHTTPPort, false, 9100, 9100},
		{"explicit default wins over config", defaultHTTPPort, true, 9100, defaultHTTPPort},
		{"explicit port wins over config", 9200, true, 9100, 9200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			app.ApplyOptions(AppOptions{HttpPort: tt.flagPort, HttpPortSet: tt.flagSet})
			app.Config = &lens.Config{HTTPPort: tt.configPort}
			assert.Equal(t, tt.want, app.httpPort())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit missing file fails", func(t *testing.T) {
		app := NewApp()
		app.ConfigFile = filepath.Join(dir, "nope.yaml")
		_, err := app.loadConfig()
		assert.Error(t, err)
	})

	t.Run("default missing file falls back", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		defer os.Chdir(wd)

		app := NewApp()
		app.ConfigFile = defaultConfigFile
		cfg, err := app.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, lens.DefaultFilterConfig(), cfg.FilterDefaults())
	})

	t.Run("data path from config", func(t *testing.T) {
		data := writeTestData(t, dir)
		cfgPath := filepath.Join(dir, "config.yaml")
		yaml := "data: " + data + "\ndefaults:\n  churn: exclude\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

		app := NewApp()
		app.ConfigFile = cfgPath
		session, err := app.loadSession()
		require.NoError(t, err)
		assert.Equal(t, data, app.dataPath)
		assert.Equal(t, lens.ChurnExclude, session.Config().Churn)
		assert.Len(t, session.View().Points, 3)
	})
}

func TestLoadSession_Overrides(t *testing.T) {
	tests := []struct {
		name        string
		scope       string
		cohort      string
		wantErr     string
		wantVisible int
	}{
		{name: "defaults", wantVisible: 4},
		{name: "sector scope", scope: "Tech", wantVisible: 2},
		{name: "aggregate scope", scope: "Sector Avg", wantVisible: 2},
		{name: "unknown sector", scope: "Mining", wantErr: "unknown sector"},
		{name: "bad cohort", cohort: "9-9", wantErr: "invalid cohort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t)
			app.Scope = tt.scope
			app.Cohort = tt.cohort
			session, err := app.loadSession()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, session.View().Points, tt.wantVisible)
		})
	}
}

func TestLoadSession_NoData(t *testing.T) {
	app := NewApp()
	_, err := app.loadSession()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset")
}

func TestPrintSummary(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, app.printSummary())
	text := out.String()
	assert.Contains(t, text, "Visible:    4 points")
	assert.Contains(t, text, "Retail")
	assert.Contains(t, text, "Tech")
}

func TestRender(t *testing.T) {
	tests := []struct {
		ext     string
		prefix  string
		wantErr bool
	}{
		{ext: ".svg", prefix: "<svg"},
		{ext: ".png", prefix: "\x89PNG"},
		{ext: ".pdf", prefix: "%PDF"},
		{ext: ".eps", prefix: "%!PS"},
		{ext: ".bmp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			app, out := newTestApp(t)
			app.RenderFile = filepath.Join(t.TempDir(), "chart"+tt.ext)
			err := app.render()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(app.RenderFile)
			require.NoError(t, err)
			head := string(data[:min(len(data), 256)])
			assert.Contains(t, head, tt.prefix, "%s output header", tt.ext)
			assert.Contains(t, out.String(), "Rendered 4 points")
		})
	}
}

func TestExportData(t *testing.T) {
	app, out := newTestApp(t)
	app.ExportFile = filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, app.exportData())

	data, err := os.ReadFile(app.ExportFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, out.String(), "Exported 4 rows")
}

func TestSessionCachePath(t *testing.T) {
	app := NewApp()
	app.dataPath = filepath.Join("data", "customers.csv")
	assert.Equal(t, filepath.Join("data", ".mrrlens-session.json"), app.sessionCachePath())

	app.SessionCache = "/tmp/explicit.json"
	assert.Equal(t, "/tmp/explicit.json", app.sessionCachePath())
}

func TestHandleCommand(t *testing.T) {
	app, _ := newTestApp(t)
	session, err := app.loadSession()
	require.NoError(t, err)
	app.StateTracker = lens.NewStateTracker(session)

	var published []lens.Summary
	app.StateTracker.Subscribe(func(s lens.Summary) { published = append(published, s) })

	app.handleCommand("scope", []byte("Retail"))
	assert.Equal(t, "Retail", app.StateTracker.Summary().Scope)

	// Rejected commands change nothing and notify nobody
	app.handleCommand("churn", []byte("never"))
	app.handleCommand("teleport", nil)
	assert.Len(t, published, 1)

	// Reload picks up an edited file
	edited := testCSV + "Retail,Echo,500,0.50,\n"
	require.NoError(t, os.WriteFile(app.dataPath, []byte(edited), 0644))
	app.handleCommand("reload", nil)
	assert.Equal(t, 5, app.StateTracker.Summary().Rows)
	assert.Equal(t, 3, app.StateTracker.Summary().Visible)
}

func TestHandleCommand_ViaMockMQTT(t *testing.T) {
	app, _ := newTestApp(t)
	session, err := app.loadSession()
	require.NoError(t, err)
	app.StateTracker = lens.NewStateTracker(session)

	mock := lens.NewMockClient()
	pub := lens.NewPublisher(mock)
	pub.SetPrefix("test")
	app.StateTracker.Subscribe(func(sum lens.Summary) {
		if err := pub.PublishSummary(sum); err != nil {
			t.Errorf("publish failed: %v", err)
		}
	})
	mock.SetConnected(true)

	app.handleCommand("churn", []byte("exclude"))

	msgs := mock.GetPublishedMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "test/summary", msgs[0].Topic)
	assert.Contains(t, string(msgs[0].Payload), `"visible":3`)
}
