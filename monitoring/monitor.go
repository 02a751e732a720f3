// Package monitoring serves the progress, memory budget and status of a
// running solve over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/monitoring/web"
)

// A BudgetReporter reports the current memory budget.
type BudgetReporter interface {
	Snapshot() (budget.Budget, error)
}

// Monitor turns a solve into a server that external tools can poll.
type Monitor struct {
	portNumber      int
	profileDuration time.Duration
	logger          *zap.Logger

	lock     sync.Mutex
	budget   BudgetReporter
	statuses map[string]func() any

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
		logger:          zap.NewNop(),
		statuses:        make(map[string]func() any),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger *zap.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterBudget sets where /api/budget reads the memory budget from.
func (m *Monitor) RegisterBudget(b BudgetReporter) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.budget = b
}

// RegisterStatus publishes the value returned by fn under
// /api/status/{name}. fn should return a pointer.
func (m *Monitor) RegisterStatus(name string, fn func() any) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.statuses[name] = fn
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the API and the web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/budget", m.reportBudget)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/status", m.listStatuses)
	r.HandleFunc("/api/status/{name}", m.reportStatus)
	r.PathPrefix("/").Handler(web.Handler())

	return r
}

// StartServer starts serving in the background and returns the URL of the
// web page.
func (m *Monitor) StartServer() (string, error) {
	addr := ":0"
	if m.portNumber > 0 {
		addr = fmt.Sprintf(":%d", m.portNumber)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("starting monitoring server: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring solve with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitoring server stopped", zap.Error(err))
		}
	}()

	return url, nil
}

// Close stops the server.
func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	if err != nil {
		m.logger.Debug("writing response", zap.Error(err))
	}
}

func (m *Monitor) fail(w http.ResponseWriter, code int, err error) {
	m.logger.Debug("monitoring request failed",
		zap.Int("code", code), zap.Error(err))
	http.Error(w, err.Error(), code)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

func (m *Monitor) reportBudget(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	reporter := m.budget
	m.lock.Unlock()

	if reporter == nil {
		m.fail(w, http.StatusServiceUnavailable,
			errors.New("no memory budget registered"))
		return
	}

	b, err := reporter.Snapshot()
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, b)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.fail(w, http.StatusConflict, err)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) listStatuses(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	m.lock.Unlock()

	sort.Strings(names)

	m.writeJSON(w, names)
}

// reportStatus serializes a registered status. The optional field query
// parameter selects a nested field with a dotted path.
func (m *Monitor) reportStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.lock.Lock()
	fn, ok := m.statuses[name]
	m.lock.Unlock()

	if !ok {
		m.fail(w, http.StatusNotFound, fmt.Errorf("status %s not found", name))
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(fn())
	serializer.SetMaxDepth(1)

	if f := r.URL.Query().Get("field"); f != "" {
		if err := serializer.SetEntryPoint(strings.Split(f, ".")); err != nil {
			m.fail(w, http.StatusBadRequest, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := serializer.Serialize(w); err != nil {
		m.logger.Debug("serializing status",
			zap.String("name", name), zap.Error(err))
	}
}
