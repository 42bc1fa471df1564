package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/mrrlens/lens"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *lens.Config
	StateTracker *lens.StateTracker
	MQTTClient   *lens.MQTTClient
	Publisher    *lens.Publisher
	Hub          *Hub
	Out          io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	DataFile     string
	SessionCache string
	RenderFile   string
	ExportFile   string
	Scope        string
	Cohort       string
	HttpPort     int
	HttpPortSet  bool
	MqttMode     bool
	HttpMode     bool

	dataPath string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataFile = opts.DataFile
	a.SessionCache = opts.SessionCache
	a.RenderFile = opts.RenderFile
	a.ExportFile = opts.ExportFile
	a.Scope = opts.Scope
	a.Cohort = opts.Cohort
	a.HttpPort = opts.HttpPort
	a.HttpPortSet = opts.HttpPortSet
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file. A missing file at the default location is
// not an error: the built-in defaults apply.
func (a *App) loadConfig() (*lens.Config, error) {
	if a.ConfigFile == "" {
		return &lens.Config{}, nil
	}
	config, err := lens.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); errors.Is(statErr, os.ErrNotExist) && a.ConfigFile == defaultConfigFile {
			log.Printf("No %s found, using built-in defaults", a.ConfigFile)
			return &lens.Config{}, nil
		}
		return nil, err
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	return config, nil
}

// loadSession loads config and dataset and builds the session, applying the
// --cohort and --scope overrides
func (a *App) loadSession() (*lens.Session, error) {
	config, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.Config = config

	a.dataPath = a.DataFile
	if a.dataPath == "" {
		a.dataPath = config.Data
	}
	if a.dataPath == "" {
		return nil, fmt.Errorf("no dataset given: set --data or data: in %s", a.ConfigFile)
	}

	table, err := lens.LoadTable(a.dataPath)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d rows (%d sectors) from %s", table.Len(), len(table.Sectors()), a.dataPath)

	session := lens.NewSession(table, config.FilterDefaults(), config.Viewport)
	if a.Cohort != "" {
		if err := session.SetCohort(lens.CohortMode(a.Cohort)); err != nil {
			return nil, err
		}
	}
	if a.Scope != "" {
		if err := lens.ApplyCommand(session, "scope", []byte(a.Scope)); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// httpPort picks the listen port: an explicit --http-port, then http.port from
// the config, then the flag default
func (a *App) httpPort() int {
	if !a.HttpPortSet && a.Config != nil && a.Config.HTTPPort != 0 {
		return a.Config.HTTPPort
	}
	return a.HttpPort
}

// RunSummary prints the visible summary and exits
func (a *App) RunSummary() {
	if err := a.printSummary(); err != nil {
		log.Fatalf("Summary failed: %v", err)
	}
}

func (a *App) printSummary() error {
	session, err := a.loadSession()
	if err != nil {
		return err
	}
	session.Summary().WriteText(a.Out)
	return nil
}

// RunRender renders the chart to RenderFile and exits
func (a *App) RunRender() {
	if err := a.render(); err != nil {
		log.Fatalf("Render failed: %v", err)
	}
}

// render picks the renderer by extension: .svg and .png go through the canvas
// renderer, .pdf and .eps through gonum/plot
func (a *App) render() error {
	session, err := a.loadSession()
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(a.RenderFile))
	f, err := os.Create(a.RenderFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", a.RenderFile, err)
	}
	defer f.Close()

	switch ext {
	case ".svg":
		err = lens.NewChartRenderer(session).RenderToSVG(f)
	case ".png":
		err = lens.NewChartRenderer(session).RenderToPNG(f)
	case ".pdf", ".eps":
		err = exportPlot(f, session, ext)
	default:
		err = fmt.Errorf("unsupported render format %q (use .svg, .png, .pdf or .eps)", ext)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Rendered %d points to %s\n", len(session.View().Points), a.RenderFile)
	return nil
}

// RunExportData writes the visible rows as CSV to ExportFile and exits
func (a *App) RunExportData() {
	if err := a.exportData(); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func (a *App) exportData() error {
	session, err := a.loadSession()
	if err != nil {
		return err
	}
	f, err := os.Create(a.ExportFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", a.ExportFile, err)
	}
	defer f.Close()

	n, err := lens.WriteRows(f, session.Table(), session.View(), nil, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Exported %d rows to %s\n", n, a.ExportFile)
	return nil
}

// sessionCachePath returns the snapshot file, next to the dataset by default
func (a *App) sessionCachePath() string {
	if a.SessionCache != "" {
		return a.SessionCache
	}
	return filepath.Join(filepath.Dir(a.dataPath), ".mrrlens-session.json")
}

// handleCommand applies a remote MQTT command to the session
func (a *App) handleCommand(command string, payload []byte) {
	if command == "reload" {
		table, err := lens.LoadTable(a.dataPath)
		if err != nil {
			log.Printf("[MQTT] Reload failed: %v", err)
			return
		}
		a.StateTracker.SetTable(table)
		log.Printf("[MQTT] Reloaded %s (%d rows)", a.dataPath, table.Len())
		return
	}
	err := a.StateTracker.Update(func(s *lens.Session) error {
		return lens.ApplyCommand(s, command, payload)
	})
	if err != nil {
		log.Printf("[MQTT] Command %s rejected: %v", command, err)
		return
	}
	log.Printf("[MQTT] Applied command %s", command)
}

// RunService runs the HTTP and/or MQTT front ends until interrupted
func (a *App) RunService() {
	fmt.Fprintln(a.Out, "Starting mrrlens service...")

	// 1. Load config and dataset, build the session
	session, err := a.loadSession()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// 2. Restore the previous session snapshot, if any
	cachePath := a.sessionCachePath()
	a.StateTracker = lens.NewStateTrackerWithCache(session, cachePath)
	log.Printf("[SESSION] Persisting session to %s", cachePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Live push to browsers
	a.Hub = NewHub(100)
	a.StateTracker.Subscribe(a.Hub.BroadcastSummary)

	// 4. Reload the dataset when it changes on disk
	watcher, err := lens.NewWatcher(a.dataPath, a.StateTracker.SetTable)
	if err != nil {
		log.Printf("[WATCH] Warning: dataset reload disabled: %v", err)
	} else {
		go watcher.Run(ctx)
		log.Printf("[WATCH] Watching %s", a.dataPath)
	}

	// 5. Start MQTT if enabled
	if a.MqttMode {
		mqttClient, err := lens.InitMQTT(a.Config, a.handleCommand)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient

		a.Publisher = lens.NewPublisher(mqttClient.GetClient())
		a.Publisher.SetPrefix(mqttClient.Prefix())
		a.StateTracker.Subscribe(func(sum lens.Summary) {
			if err := a.Publisher.PublishSummary(sum); err != nil {
				log.Printf("[MQTT] Summary not published: %v", err)
			}
		})
		fmt.Fprintln(a.Out, "MQTT summary publisher initialized")
	}

	// 6. Start HTTP server if enabled
	var server *http.Server
	if a.HttpMode {
		port := a.httpPort()
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.StateTracker, a.Hub),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
		a.HttpPort = port
	}

	// 7. Print service info
	a.printServiceInfo()

	// 8. Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	cancel()
	a.Hub.Close()
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
		done()
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
}

func (a *App) printServiceInfo() {
	out := a.Out
	fmt.Fprintln(out, "\nService Running")
	fmt.Fprintln(out, "===============")
	fmt.Fprintf(out, "Dataset: %s\n", a.dataPath)

	if a.MqttMode && a.MQTTClient != nil {
		prefix := a.MQTTClient.Prefix()
		fmt.Fprintln(out, "\nMQTT:")
		fmt.Fprintf(out, "  Publishing to: %s/summary\n", prefix)
		fmt.Fprintf(out, "  Sector stats:  %s/sectors/{sector}\n", prefix)
		fmt.Fprintf(out, "  Commands:      %s\n", a.MQTTClient.CommandTopic())
	}

	if a.HttpMode {
		fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(out, "  GET  /health          - Health check")
		fmt.Fprintln(out, "  GET  /api/view        - Visible points, line, bounds")
		fmt.Fprintln(out, "  GET  /chart.svg       - Chart (SVG)")
		fmt.Fprintln(out, "  GET  /chart.png       - Chart (PNG)")
		fmt.Fprintln(out, "  GET  /export.pdf      - Print export (also .svg, .png, .eps)")
		fmt.Fprintln(out, "  GET  /export.csv      - Visible rows as CSV")
		fmt.Fprintln(out, "  POST /api/...         - Session commands")
		fmt.Fprintln(out, "  GET  /ws              - Live summaries")
	}

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
