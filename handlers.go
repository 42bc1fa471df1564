package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/kwv/mrrlens/lens"
	"github.com/paulmach/orb"
)

// errNoData is returned by handlers that need a loaded dataset
var errNoData = errors.New("no dataset loaded")

// maxBodyBytes caps request bodies; the largest is a full FilterConfig
const maxBodyBytes = 1 << 20

// newHTTPServer creates an HTTP server with all endpoints. Everything except the
// WebSocket endpoint is gzip-compressed when the client accepts it.
func newHTTPServer(stateTracker *lens.StateTracker, hub *Hub) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			HasData     bool      `json:"hasData"`
			LastUpdated time.Time `json:"lastUpdated"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			HasData:     stateTracker.HasData(),
			LastUpdated: stateTracker.LastUpdated(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, indexHTML)
	})

	mux.HandleFunc("GET /api/view", func(w http.ResponseWriter, r *http.Request) {
		var resp viewResponse
		stateTracker.Read(func(s *lens.Session) {
			resp = newViewResponse(s)
		})
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		var cfg lens.FilterConfig
		stateTracker.Read(func(s *lens.Session) { cfg = s.Config() })
		writeJSON(w, http.StatusOK, cfg)
	})

	mux.HandleFunc("PUT /api/config", func(w http.ResponseWriter, r *http.Request) {
		var cfg lens.FilterConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		mutate(w, stateTracker, func(s *lens.Session) error { return s.ApplySettings(cfg) })
	})

	// Plain-text session commands share the MQTT command set
	for _, name := range []string{"scope", "cohort", "churn", "regression-filter", "focus", "swap"} {
		command := name
		mux.HandleFunc("POST /api/"+command, func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Value string `json:"value"`
			}
			if !decodeJSON(w, r, &body) {
				return
			}
			mutate(w, stateTracker, func(s *lens.Session) error {
				return lens.ApplyCommand(s, command, []byte(body.Value))
			})
		})
	}

	mux.HandleFunc("POST /api/license", func(w http.ResponseWriter, r *http.Request) {
		var cmd lens.LicenseCommand
		if !decodeJSON(w, r, &cmd) {
			return
		}
		mutate(w, stateTracker, func(s *lens.Session) error {
			return s.SetLicense(cmd.Mode, cmd.Threshold, cmd.Reverse)
		})
	})

	for _, name := range []string{"delete", "invert", "clear-selection", "undo", "fit"} {
		command := name
		mux.HandleFunc("POST /api/"+command, func(w http.ResponseWriter, r *http.Request) {
			mutate(w, stateTracker, func(s *lens.Session) error {
				return lens.ApplyCommand(s, command, nil)
			})
		})
	}

	mux.HandleFunc("POST /api/pointer/press", func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var started bool
		stateTracker.Do(func(s *lens.Session) {
			started = s.Press(req.point(), req.Modifier, req.Panning)
		})
		writeJSON(w, http.StatusOK, map[string]bool{"dragging": started})
	})

	mux.HandleFunc("POST /api/pointer/motion", func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var resp struct {
			Moved bool        `json:"moved"`
			Rect  *[4]float64 `json:"rect,omitempty"`
		}
		stateTracker.Do(func(s *lens.Session) {
			resp.Moved = s.Motion(req.point())
			if rect, ok := s.SelectionRect(); ok {
				b := boundArray(rect)
				resp.Rect = &b
			}
		})
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/pointer/release", func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var res lens.PointerResult
		err := stateTracker.Update(func(s *lens.Session) error {
			res = s.Release(req.point())
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		resp := releaseResponse{
			Click:     res.Click,
			Added:     res.Added,
			Changed:   res.Changed,
			DrillDown: res.DrillDown,
		}
		if res.Hit != nil {
			resp.Hit = res.Hit.Key.String()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/right-click", func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var removed string
		err := stateTracker.Update(func(s *lens.Session) error {
			if e := s.RightClick(req.point()); e != nil {
				removed = e.Kind()
			}
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"entry": removed})
	})

	mux.HandleFunc("POST /api/zoom", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Steps int     `json:"steps"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		mutate(w, stateTracker, func(s *lens.Session) error {
			s.Zoom(orb.Point{req.X, req.Y}, req.Steps)
			return nil
		})
	})

	mux.HandleFunc("POST /api/pan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		mutate(w, stateTracker, func(s *lens.Session) error {
			s.Pan(req.DX, req.DY)
			return nil
		})
	})

	mux.HandleFunc("GET /chart.svg", func(w http.ResponseWriter, r *http.Request) {
		serveRendered(w, stateTracker, "image/svg+xml", func(s *lens.Session, buf *bytes.Buffer) error {
			return lens.NewChartRenderer(s).RenderToSVG(buf)
		})
	})

	mux.HandleFunc("GET /chart.png", func(w http.ResponseWriter, r *http.Request) {
		serveRendered(w, stateTracker, "image/png", func(s *lens.Session, buf *bytes.Buffer) error {
			return lens.NewChartRenderer(s).RenderToPNG(buf)
		})
	})

	mux.HandleFunc("GET /export.csv", func(w http.ResponseWriter, r *http.Request) {
		onlySelected := r.URL.Query().Get("selected") != ""
		serveRendered(w, stateTracker, "text/csv; charset=utf-8", func(s *lens.Session, buf *bytes.Buffer) error {
			_, err := lens.WriteRows(buf, s.Table(), s.View(), lens.NewKeySet(s.Selection()...), onlySelected)
			return err
		})
	})

	for _, format := range lens.ExportFormats {
		f := format
		mux.HandleFunc("GET /export."+f, func(w http.ResponseWriter, r *http.Request) {
			serveRendered(w, stateTracker, exportContentType(f), func(s *lens.Session, buf *bytes.Buffer) error {
				return exportPlot(buf, s, f)
			})
		})
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		var initial *lens.Summary
		if stateTracker.HasData() {
			sum := stateTracker.Summary()
			initial = &sum
		}
		hub.ServeWS(w, r, initial)
	})
	root.Handle("/", gzhttp.GzipHandler(mux))

	return logRequests(root)
}

// exportPlot renders the session through gonum/plot
func exportPlot(w io.Writer, s *lens.Session, format string) error {
	if s.Table() == nil {
		return errNoData
	}
	opts := lens.DefaultExportOptions()
	opts.Title = fmt.Sprintf("%s | %s", s.Scope(), s.Config().Cohort)
	return lens.ExportPlot(w, s.View(), s.Bounds(), lens.SectorColors(s.Table()), format, opts)
}

func exportContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	case "eps":
		return "application/postscript"
	}
	return "application/octet-stream"
}

// serveRendered renders under the read lock into a buffer, then writes it out
func serveRendered(w http.ResponseWriter, st *lens.StateTracker, contentType string, render func(*lens.Session, *bytes.Buffer) error) {
	if !st.HasData() {
		http.Error(w, errNoData.Error(), http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	var err error
	st.Read(func(s *lens.Session) { err = render(s, &buf) })
	if err != nil {
		log.Printf("[HTTP] Render error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("[HTTP] Error writing response: %v", err)
	}
}

// mutate runs fn under the tracker's write lock and answers with the new summary.
// Errors from fn are user errors and map to 400.
func mutate(w http.ResponseWriter, st *lens.StateTracker, fn func(*lens.Session) error) {
	if !st.HasData() {
		http.Error(w, errNoData.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := st.Update(fn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Summary())
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errNoData) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

// decodeJSON reads the request body into v, answering 400 on failure. An empty
// body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[HTTP] %s %s %d (%s) from %s", r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}

type pointerRequest struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Modifier bool    `json:"modifier"`
	Panning  bool    `json:"panning"`
}

func (p pointerRequest) point() orb.Point { return orb.Point{p.X, p.Y} }

type releaseResponse struct {
	Click     bool   `json:"click"`
	Hit       string `json:"hit,omitempty"`
	Added     int    `json:"added"`
	Changed   bool   `json:"changed"`
	DrillDown string `json:"drillDown,omitempty"`
}

// viewPoint is one plotted point as sent to the browser
type viewPoint struct {
	Key      string      `json:"key"`
	Sector   string      `json:"sector"`
	Customer string      `json:"customer,omitempty"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	MRR      float64     `json:"mrr"`
	Growth   float64     `json:"growth"`
	Churned  bool        `json:"churned,omitempty"`
	Risk     string      `json:"risk,omitempty"`
	Members  int         `json:"members,omitempty"`
	Selected bool        `json:"selected,omitempty"`
	Color    string      `json:"color"`
	Before   *[2]float64 `json:"before,omitempty"`
}

type viewQuadrant struct {
	Name   string     `json:"name"`
	Bounds [4]float64 `json:"bounds"`
	Color  string     `json:"color"`
}

type viewResponse struct {
	Summary    lens.Summary      `json:"summary"`
	Config     lens.FilterConfig `json:"config"`
	XLabel     string            `json:"xLabel"`
	YLabel     string            `json:"yLabel"`
	Points     []viewPoint       `json:"points"`
	Center     [2]float64        `json:"center"`
	SectorMean *[2]float64       `json:"sectorMean,omitempty"`
	Rect       *[4]float64       `json:"rect,omitempty"`
	Quadrants  []viewQuadrant    `json:"quadrants,omitempty"`
	Sectors    []string          `json:"sectors"`
	UndoKinds  []string          `json:"undoKinds"`
}

func newViewResponse(s *lens.Session) viewResponse {
	v := s.View()
	cfg := s.Config()
	colors := lens.SectorColors(s.Table())
	resp := viewResponse{
		Summary:   s.Summary(),
		Config:    cfg,
		Points:    make([]viewPoint, 0, len(v.Points)),
		Center:    [2]float64{v.Center.X(), v.Center.Y()},
		Sectors:   append([]string{lens.ScopeAllLabel, lens.ScopeAggregateLabel}, s.Table().Sectors()...),
		UndoKinds: s.UndoKinds(),
	}
	resp.XLabel, resp.YLabel = lens.AxisLabels(v.SwapAxes)

	for _, p := range v.Points {
		c, ok := colors[p.Sector]
		switch {
		case v.RiskView:
			c = lens.RiskColor(p.Risk)
		case p.Churned:
			c = lens.ChurnColor
		case p.Key.IsAggregate() || !ok:
			c = lens.AggregateColor
		}
		vp := viewPoint{
			Key:      p.Key.String(),
			Sector:   p.Sector,
			Customer: p.Customer,
			X:        p.Plot.X(),
			Y:        p.Plot.Y(),
			MRR:      p.MRR,
			Growth:   p.Growth,
			Churned:  p.Churned,
			Risk:     string(p.Risk),
			Members:  p.Members,
			Selected: s.Selected(p.Key),
			Color:    hexColor(c),
		}
		if p.Before != nil {
			vp.Before = &[2]float64{p.Before.X(), p.Before.Y()}
		}
		resp.Points = append(resp.Points, vp)
	}
	if v.SectorMean != nil {
		resp.SectorMean = &[2]float64{v.SectorMean.X(), v.SectorMean.Y()}
	}
	if rect, ok := s.SelectionRect(); ok {
		b := boundArray(rect)
		resp.Rect = &b
	}
	for _, q := range lens.RiskQuadrants(v, cfg, s.Bounds()) {
		resp.Quadrants = append(resp.Quadrants, viewQuadrant{
			Name:   q.Name,
			Bounds: boundArray(q.Bounds),
			Color:  hexColor(q.Color),
		})
	}
	return resp
}

func boundArray(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

// hexColor formats c as #rrggbbaa
func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>mrrlens</title>
<style>
body { font-family: sans-serif; margin: 1em; }
#chart { border: 1px solid #ccc; max-width: 100%; }
pre { background: #f6f6f6; padding: .5em; }
</style>
</head>
<body>
<h1>mrrlens</h1>
<p>
<button onclick="post('/api/undo')">Undo</button>
<button onclick="post('/api/fit')">Fit</button>
<button onclick="post('/api/invert')">Invert selection</button>
<button onclick="post('/api/delete')">Delete selected</button>
<a href="/export.pdf">PDF</a> <a href="/export.csv">CSV</a>
</p>
<img id="chart" src="/chart.svg" alt="chart">
<pre id="summary"></pre>
<script>
function post(path) { fetch(path, {method: 'POST'}); }
function refresh(sum) {
  document.getElementById('chart').src = '/chart.svg?t=' + Date.now();
  document.getElementById('summary').textContent = JSON.stringify(sum, null, 2);
}
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function (ev) {
  const msg = JSON.parse(ev.data);
  if (msg.type === 'summary') { refresh(msg.data); }
};
</script>
</body>
</html>
`
