package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/veritag-systems/rfid-label-agent/label"
	"github.com/veritag-systems/rfid-label-agent/printer"
	"github.com/veritag-systems/rfid-label-agent/reader"
)

// Version is reported in status responses and the mDNS TXT record.
const Version = "v1.0"

const mdnsService = "_rfid-label._tcp"

// Config fixes the agent's printer target and defaults at startup. It is
// read-only while the server runs.
type Config struct {
	Address    string
	Target     printer.Target
	Language   printer.Selection
	EnableMDNS bool
}

// Server exposes the print coordinator and the tag reader to local clients
// over a WebSocket JSON protocol.
type Server struct {
	coord  *printer.Coordinator
	reader reader.Reader
	prober printer.Prober
	cfg    Config
	log    zerolog.Logger

	upgrader websocket.Upgrader
	listener net.Listener
	mdns     *zeroconf.Server
	mu       sync.Mutex
	running  bool
	wg       sync.WaitGroup

	// printMu enforces at most one in-flight send against the target.
	printMu sync.Mutex
}

// New creates a server instance.
func New(coord *printer.Coordinator, rdr reader.Reader, prober printer.Prober, cfg Config, log zerolog.Logger) *Server {
	return &Server{
		coord:  coord,
		reader: rdr,
		prober: prober,
		cfg:    cfg,
		log:    log,
	}
}

// Start starts the server and blocks until Stop is called.
func (s *Server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}
	return s.serve()
}

// StartAsync starts the server in a goroutine (non-blocking).
func (s *Server) StartAsync() error {
	if err := s.listen(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve()
	}()
	return nil
}

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.running = true
	s.log.Info().Str("address", listener.Addr().String()).Msg("agent listening")

	if s.cfg.EnableMDNS {
		s.registerMDNS()
	}
	return nil
}

func (s *Server) registerMDNS() {
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot derive mDNS port")
		return
	}
	port, _ := strconv.Atoi(portStr)
	mdns, err := zeroconf.Register("rfid-label-agent", mdnsService, "local.", port,
		[]string{"version=" + Version}, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("mDNS registration failed")
		return
	}
	s.mdns = mdns
	s.log.Info().Str("service", mdnsService).Int("port", port).Msg("mDNS service registered")
}

func (s *Server) serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatusHTTP)

	err := http.Serve(s.listener, mux)
	if !s.IsRunning() {
		// Listener closed by Stop
		return nil
	}
	return err
}

// Stop stops the server and tears down the mDNS registration.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	mdns := s.mdns
	s.mdns = nil
	s.mu.Unlock()

	if mdns != nil {
		mdns.Shutdown()
	}
	if listener != nil {
		listener.Close()
	}
	s.wg.Wait()
	s.log.Info().Msg("agent stopped")
	return nil
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

func (s *Server) handleStatusHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := conn.RemoteAddr().String()
	s.log.Info().Str("client", client).Msg("client connected")
	defer s.log.Info().Str("client", client).Msg("client disconnected")

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Str("client", client).Err(err).Msg("read error")
			}
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		s.dispatch(conn, req)
	}
}

// dispatch runs one request and writes its response(s). Requests on a single
// connection are handled sequentially, so writes never interleave.
func (s *Server) dispatch(conn *websocket.Conn, req Request) {
	switch req.Action {
	case ActionPrint:
		s.handlePrint(conn, req)
	case ActionBatchPrint:
		s.handleBatchPrint(conn, req)
	case ActionTestPrint:
		outcome := s.withPrintLock(func() printer.Outcome {
			return s.coord.PrintTestLabel(s.cfg.Target, s.cfg.Language)
		})
		s.respondOutcome(conn, req, outcome)
	case ActionRead:
		s.handleRead(conn, req)
	case ActionWriteTag:
		s.handleWriteTag(conn, req)
	case ActionVerify:
		s.handleVerify(conn, req)
	case ActionDetect:
		s.handleDetect(conn, req)
	case ActionStatus:
		s.respondResult(conn, req, s.status())
	default:
		s.respondError(conn, req, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) handlePrint(conn *websocket.Conn, req Request) {
	var pr PrintRequest
	if err := json.Unmarshal(req.Payload, &pr); err != nil {
		s.respondError(conn, req, "malformed print payload: "+err.Error())
		return
	}
	sel, err := s.selection(pr.Language)
	if err != nil {
		s.respondError(conn, req, err.Error())
		return
	}
	outcome := s.withPrintLock(func() printer.Outcome {
		return s.coord.PrintLabel(pr.Label.description(), s.cfg.Target, sel)
	})
	s.respondOutcome(conn, req, outcome)
}

func (s *Server) handleBatchPrint(conn *websocket.Conn, req Request) {
	var br BatchPrintRequest
	if err := json.Unmarshal(req.Payload, &br); err != nil {
		s.respondError(conn, req, "malformed batch payload: "+err.Error())
		return
	}
	sel, err := s.selection(br.Language)
	if err != nil {
		s.respondError(conn, req, err.Error())
		return
	}

	descs := make([]label.Description, 0, len(br.Labels))
	for _, lp := range br.Labels {
		descs = append(descs, lp.description())
	}

	s.printMu.Lock()
	defer s.printMu.Unlock()

	sum := s.coord.BatchPrint(descs, s.cfg.Target, sel, func(p printer.Progress) {
		s.write(conn, Response{
			ID:     req.ID,
			Type:   TypeProgress,
			Action: req.Action,
			OK:     true,
			Result: ProgressEvent{
				Index:   p.Index,
				Total:   p.Total,
				AssetID: p.AssetID,
				Success: p.Outcome.Success,
				Message: p.Outcome.Message,
			},
		})
	})
	s.respondResult(conn, req, BatchPrintResult{
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
		Skipped:   sum.Skipped,
	})
}

func (s *Server) handleRead(conn *websocket.Conn, req Request) {
	res, err := s.reader.Read()
	if err != nil {
		s.respondError(conn, req, err.Error())
		return
	}
	s.respondResult(conn, req, ReadTagResult{EPC: res.TagID, RSSI: res.RSSI})
}

func (s *Server) handleWriteTag(conn *websocket.Conn, req Request) {
	var wr WriteTagRequest
	if err := json.Unmarshal(req.Payload, &wr); err != nil {
		s.respondError(conn, req, "malformed write payload: "+err.Error())
		return
	}
	if err := s.reader.Write(wr.EPC); err != nil {
		s.respondError(conn, req, err.Error())
		return
	}
	s.respondResult(conn, req, map[string]bool{"written": true})
}

func (s *Server) handleVerify(conn *websocket.Conn, req Request) {
	var vr VerifyRequest
	if err := json.Unmarshal(req.Payload, &vr); err != nil {
		s.respondError(conn, req, "malformed verify payload: "+err.Error())
		return
	}
	if vr.EPC == "" {
		s.respondError(conn, req, "no EPC to verify")
		return
	}
	v, err := s.reader.Verify(vr.EPC)
	if err != nil {
		s.respondError(conn, req, err.Error())
		return
	}
	s.respondResult(conn, req, VerifyResult{
		Matched:  v.Matched,
		Observed: ReadTagResult{EPC: v.Observed.TagID, RSSI: v.Observed.RSSI},
	})
}

func (s *Server) handleDetect(conn *websocket.Conn, req Request) {
	t := s.cfg.Target
	if t.Mode != printer.ModeNetwork || t.Host == "" {
		s.respondError(conn, req, "dialect detection requires a network printer target")
		return
	}
	port := t.Port
	if port == 0 {
		port = printer.DefaultPort
	}
	guess := s.prober.Detect(t.Host, port)
	s.respondResult(conn, req, DetectResult{Language: guess.String()})
}

func (s *Server) status() StatusResult {
	return StatusResult{
		Version:     Version,
		ReaderState: s.reader.State().String(),
		PrinterMode: s.cfg.Target.Mode.String(),
		PrinterHost: s.cfg.Target.Host,
		PrinterPort: s.cfg.Target.Port,
		Language:    s.cfg.Language.String(),
	}
}

func (s *Server) selection(override string) (printer.Selection, error) {
	if override == "" {
		return s.cfg.Language, nil
	}
	return printer.ParseSelection(override)
}

func (s *Server) withPrintLock(fn func() printer.Outcome) printer.Outcome {
	s.printMu.Lock()
	defer s.printMu.Unlock()
	return fn()
}

func (s *Server) respondOutcome(conn *websocket.Conn, req Request, outcome printer.Outcome) {
	s.write(conn, Response{
		ID:     req.ID,
		Type:   TypeResult,
		Action: req.Action,
		OK:     outcome.Success,
		Error:  errorUnlessOK(outcome),
		Result: PrintResult{
			Success:  outcome.Success,
			Message:  outcome.Message,
			Language: outcome.Language.String(),
		},
	})
}

func errorUnlessOK(outcome printer.Outcome) string {
	if outcome.Success {
		return ""
	}
	return outcome.Message
}

func (s *Server) respondResult(conn *websocket.Conn, req Request, result any) {
	s.write(conn, Response{ID: req.ID, Type: TypeResult, Action: req.Action, OK: true, Result: result})
}

func (s *Server) respondError(conn *websocket.Conn, req Request, msg string) {
	s.write(conn, Response{ID: req.ID, Type: TypeResult, Action: req.Action, OK: false, Error: msg})
}

func (s *Server) write(conn *websocket.Conn, resp Response) {
	if err := conn.WriteJSON(resp); err != nil {
		s.log.Warn().Err(err).Msg("write failed")
	}
}
