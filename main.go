package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	defaultConfigFile = "config.yaml"
	defaultHTTPPort   = 8080
)

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile   string
	DataFile     string
	SessionCache string
	RenderFile   string
	ExportFile   string
	Scope        string
	Cohort       string
	HttpPort     int
	HttpPortSet  bool // --http-port was given explicitly
	SummaryOnly  bool
	MqttMode     bool
	HttpMode     bool
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSummary()
	RunRender()
	RunExportData()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
}

func run(args []string, stdout io.Writer, app Runner) error {
	fs := flag.NewFlagSet("mrrlens", flag.ContinueOnError)
	fs.SetOutput(stdout)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", defaultConfigFile, "Path to configuration file")
	fs.StringVar(&opts.DataFile, "data", "", "Path to the customer CSV (overrides data: in config)")
	fs.StringVar(&opts.SessionCache, "session-cache", "", "Session snapshot file (default: .mrrlens-session.json next to the data)")
	fs.BoolVar(&opts.SummaryOnly, "summary", false, "Print the visible summary and exit")
	fs.StringVar(&opts.RenderFile, "render", "", "Render the chart to FILE (.svg, .png, .pdf, .eps) and exit")
	fs.StringVar(&opts.ExportFile, "export-data", "", "Write the visible rows as CSV to FILE and exit")
	fs.StringVar(&opts.Scope, "scope", "", "Initial scope: All, Sector Avg, or a sector name")
	fs.StringVar(&opts.Cohort, "cohort", "", "Initial cohort: 0-Current, 0-1, 0-2 or 1-2")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish view summaries and accept commands over MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for the interactive chart")
	fs.IntVar(&opts.HttpPort, "http-port", defaultHTTPPort, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "http-port" {
			opts.HttpPortSet = true
		}
	})

	fmt.Fprintf(stdout, "mrrlens version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.SummaryOnly:
		app.RunSummary()
	case opts.RenderFile != "":
		app.RunRender()
	case opts.ExportFile != "":
		app.RunExportData()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(stdout, "Use --summary to print the visible summary")
		fmt.Fprintln(stdout, "Use --render FILE to render the chart (.svg, .png, .pdf, .eps)")
		fmt.Fprintln(stdout, "Use --export-data FILE to write the visible rows as CSV")
		fmt.Fprintln(stdout, "Use --http to run the interactive HTTP server")
		fmt.Fprintln(stdout, "Use --mqtt to publish summaries and accept MQTT commands")
		fmt.Fprintln(stdout, "\nConfiguration:")
		fmt.Fprintln(stdout, "  config.yaml - dataset path, MQTT settings, viewport and filter defaults")
	}
	return nil
}
