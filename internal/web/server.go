// Package web serves the lamp's local control page and its HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/lamp-relay/internal/network"
	"github.com/sweeney/lamp-relay/internal/ota"
	"github.com/sweeney/lamp-relay/internal/status"
	"github.com/sweeney/lamp-relay/internal/system"
)

const (
	// DefaultRestartDelay lets the response reach the client before the restart.
	DefaultRestartDelay = 800 * time.Millisecond

	// toggleTimeout bounds how long a /toggle request waits for the control loop.
	toggleTimeout = 2 * time.Second

	toggleQueueSize = 8
)

// Response bodies shown to the user by the page.
const (
	msgOK            = "ok"
	msgInvalidSSID   = "SSID inválido!"
	msgWiFiSaved     = "Wi-Fi salvo. Reiniciando..."
	msgWiFiSaveError = "Erro ao salvar Wi-Fi!"
	msgUpdateOK      = "✅ Atualizado! Reiniciando..."
	msgUpdateFailed  = "❌ Erro na atualização!"
	msgUpdateBusy    = "Atualização em andamento!"
	msgRebooting     = "Reiniciando..."
	msgBusy          = "busy"
)

// Toggler flips the lamp. It is only called from Service.
type Toggler interface {
	Toggle()
}

// Network is the part of the network manager the page needs.
type Network interface {
	Identity() network.Identity
	RSSI() int
	SaveCredentials(c network.Credentials) error
}

// Scanner returns available networks without blocking.
type Scanner interface {
	Results() []network.AvailableNetwork
}

// Updater receives a firmware image.
type Updater interface {
	Receive(r io.Reader) (ota.Session, error)
}

// Deps are the collaborators of the Server.
type Deps struct {
	Tracker      *status.Tracker
	Network      Network
	Scanner      Scanner
	Updater      Updater
	Restarter    system.Restarter
	RestartDelay time.Duration
	Log          *zap.Logger
}

var errNoImage = errors.New("no firmware file in upload")

// A toggle request is claimed by Service or abandoned by its handler,
// whichever comes first. Abandoned requests are never applied.
const (
	togglePending int32 = iota
	toggleClaimed
	toggleAbandoned
)

type toggleReq struct {
	state atomic.Int32
	done  chan struct{}
}

// abandon reports whether the request was withdrawn before Service claimed it.
func (r *toggleReq) abandon() bool {
	return r.state.CompareAndSwap(togglePending, toggleAbandoned)
}

// Server serves the control page and API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
	log        *zap.Logger
	toggles    chan *toggleReq
	toggleWait time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.RestartDelay <= 0 {
		d.RestartDelay = DefaultRestartDelay
	}
	s := &Server{
		deps:       d,
		log:        d.Log.Named("web"),
		toggles:    make(chan *toggleReq, toggleQueueSize),
		toggleWait: toggleTimeout,
		done:       make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /toggle", s.handleToggle)
	mux.HandleFunc("GET /scan", s.handleScan)
	mux.HandleFunc("/setwifi", s.handleSetWiFi)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("/reboot", s.handleReboot)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and closes live sockets.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// Service applies queued toggle requests. Called from the control loop.
func (s *Server) Service(t Toggler) {
	for {
		select {
		case req := <-s.toggles:
			if !req.state.CompareAndSwap(togglePending, toggleClaimed) {
				continue
			}
			t.Toggle()
			close(req.done)
		default:
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderIndex(w, s.pageData())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, configHTML)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatStatus(snap))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	req := &toggleReq{done: make(chan struct{})}

	select {
	case s.toggles <- req:
	default:
		s.log.Warn("toggle queue full")
		http.Error(w, msgBusy, http.StatusServiceUnavailable)
		return
	}

	timer := time.NewTimer(s.toggleWait)
	defer timer.Stop()

	select {
	case <-req.done:
	case <-timer.C:
		if req.abandon() {
			s.log.Warn("toggle not serviced in time")
			http.Error(w, msgBusy, http.StatusServiceUnavailable)
			return
		}
		<-req.done
	case <-r.Context().Done():
		if req.abandon() {
			return
		}
		<-req.done
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, msgOK)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	nets := []network.AvailableNetwork{}
	if s.deps.Scanner != nil {
		nets = s.deps.Scanner.Results()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(nets)
}

func (s *Server) handleSetWiFi(w http.ResponseWriter, r *http.Request) {
	ssid := r.FormValue("ssid")
	pass := r.FormValue("pass")

	if ssid == "" {
		http.Error(w, msgInvalidSSID, http.StatusBadRequest)
		return
	}

	if err := s.deps.Network.SaveCredentials(network.Credentials{SSID: ssid, Passphrase: pass}); err != nil {
		s.log.Error("save credentials failed", zap.Error(err))
		http.Error(w, msgWiFiSaveError, http.StatusInternalServerError)
		return
	}

	writeText(w, http.StatusOK, msgWiFiSaved)
	s.deps.Restarter.RestartAfter(s.deps.RestartDelay, "wifi credentials changed")
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.log.Warn("update without multipart body", zap.Error(err))
		http.Error(w, msgUpdateFailed, http.StatusBadRequest)
		return
	}

	s.deps.Tracker.SetUpdate(&status.UpdateInfo{Status: ota.Receiving.String()})

	session, err := s.receiveImage(mr)
	s.deps.Tracker.SetUpdate(&status.UpdateInfo{
		Status:       session.Status.String(),
		BytesWritten: session.BytesWritten,
		Error:        session.Error,
	})

	if errors.Is(err, ota.ErrBusy) {
		http.Error(w, msgUpdateBusy, http.StatusServiceUnavailable)
		return
	}

	if err != nil {
		s.log.Error("update failed", zap.Int64("bytes", session.BytesWritten), zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgUpdateFailed)
	} else {
		s.log.Info("update installed", zap.Int64("bytes", session.BytesWritten))
		writeText(w, http.StatusOK, msgUpdateOK)
	}
	s.deps.Restarter.RestartAfter(s.deps.RestartDelay, "firmware update")
}

// receiveImage streams the first file part into the updater and drains the rest.
func (s *Server) receiveImage(mr *multipart.Reader) (ota.Session, error) {
	var (
		session ota.Session
		err     = errNoImage
		got     bool
	)
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			if !got {
				return ota.Session{Status: ota.Failed, Error: perr.Error()}, perr
			}
			break
		}
		if !got && part.FileName() != "" {
			s.log.Info("update started", zap.String("file", part.FileName()))
			session, err = s.deps.Updater.Receive(part)
			got = true
		}
		io.Copy(io.Discard, part)
		part.Close()
	}
	if !got {
		session = ota.Session{Status: ota.Failed, Error: errNoImage.Error()}
	}
	return session, err
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, msgRebooting)
	s.deps.Restarter.RestartAfter(s.deps.RestartDelay, "requested from web page")
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, msg)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
