package server

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritag-systems/rfid-label-agent/printer"
	"github.com/veritag-systems/rfid-label-agent/reader"
)

// recordingSender captures payloads instead of touching a printer.
type recordingSender struct {
	sent [][]byte
	err  error
}

func (s *recordingSender) Send(t printer.Target, data []byte) error {
	s.sent = append(s.sent, append([]byte(nil), data...))
	return s.err
}

type fixedProber struct {
	calls int
	guess printer.DialectGuess
}

func (p *fixedProber) Detect(host string, port int) printer.DialectGuess {
	p.calls++
	return p.guess
}

// envelope mirrors Response with a raw result so tests can decode the
// payload per action.
type envelope struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type serverFixture struct {
	server *Server
	conn   *websocket.Conn
	sender *recordingSender
	prober *fixedProber
}

func startFixture(t *testing.T, target printer.Target) *serverFixture {
	t.Helper()

	sender := &recordingSender{}
	prober := &fixedProber{guess: printer.GuessZPL}
	coord := printer.NewCoordinator(sender, sender, prober, t.TempDir(), zerolog.Nop())

	srv := New(coord, reader.NewSimulated(), prober, Config{
		Address:  "127.0.0.1:0",
		Target:   target,
		Language: printer.SelectZPL,
	}, zerolog.Nop())

	require.NoError(t, srv.StartAsync())
	t.Cleanup(func() { srv.Stop() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &serverFixture{server: srv, conn: conn, sender: sender, prober: prober}
}

func networkTarget() printer.Target {
	return printer.Target{Mode: printer.ModeNetwork, Host: "192.0.2.10", Port: 9100}
}

func (f *serverFixture) send(t *testing.T, req Request) {
	t.Helper()
	require.NoError(t, f.conn.WriteJSON(req))
}

func (f *serverFixture) recv(t *testing.T) envelope {
	t.Helper()
	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env envelope
	require.NoError(t, f.conn.ReadJSON(&env))
	return env
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestPrintAction(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{
		ID:     "req-1",
		Action: ActionPrint,
		Payload: payload(t, PrintRequest{
			Label: LabelPayload{AssetID: "AST-0001", Name: "Rack Server"},
		}),
	})

	env := f.recv(t)
	assert.Equal(t, "req-1", env.ID)
	assert.Equal(t, TypeResult, env.Type)
	assert.True(t, env.OK)

	var res PrintResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "zpl", res.Language)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, string(f.sender.sent[0]), "AST-0001")
}

func TestPrintRejectsEmptyAssetID(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{
		ID:      "req-2",
		Action:  ActionPrint,
		Payload: payload(t, PrintRequest{Label: LabelPayload{Name: "nameless"}}),
	})

	env := f.recv(t)
	assert.False(t, env.OK)
	assert.NotEmpty(t, env.Error)
	assert.Empty(t, f.sender.sent)
}

func TestBatchPrintStreamsProgress(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{
		ID:     "batch-1",
		Action: ActionBatchPrint,
		Payload: payload(t, BatchPrintRequest{
			Labels: []LabelPayload{
				{AssetID: "AST-0001"},
				{}, // skipped: no asset id
				{AssetID: "AST-0003"},
			},
		}),
	})

	first := f.recv(t)
	assert.Equal(t, TypeProgress, first.Type)
	var p1 ProgressEvent
	require.NoError(t, json.Unmarshal(first.Result, &p1))
	assert.Equal(t, 1, p1.Index)
	assert.Equal(t, 3, p1.Total)
	assert.Equal(t, "AST-0001", p1.AssetID)
	assert.True(t, p1.Success)

	second := f.recv(t)
	assert.Equal(t, TypeProgress, second.Type)
	var p2 ProgressEvent
	require.NoError(t, json.Unmarshal(second.Result, &p2))
	assert.Equal(t, 3, p2.Index)
	assert.Equal(t, "AST-0003", p2.AssetID)

	final := f.recv(t)
	assert.Equal(t, TypeResult, final.Type)
	assert.Equal(t, "batch-1", final.ID)
	var sum BatchPrintResult
	require.NoError(t, json.Unmarshal(final.Result, &sum))
	assert.Equal(t, BatchPrintResult{Succeeded: 2, Failed: 0, Skipped: 1}, sum)
}

func TestReadAction(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{ID: "read-1", Action: ActionRead})

	env := f.recv(t)
	assert.True(t, env.OK)

	var res ReadTagResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Regexp(t, regexp.MustCompile(`^E2[0-9A-F]{22}$`), res.EPC)
}

func TestVerifyMismatch(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{
		ID:      "verify-1",
		Action:  ActionVerify,
		Payload: payload(t, VerifyRequest{EPC: "E2000000000000000000000000"}),
	})

	env := f.recv(t)
	assert.True(t, env.OK)

	var res VerifyResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.False(t, res.Matched)
	assert.NotEmpty(t, res.Observed.EPC)
}

func TestVerifyRequiresEPC(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{Action: ActionVerify, Payload: payload(t, VerifyRequest{})})

	env := f.recv(t)
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "no EPC")
	assert.NotEmpty(t, env.ID, "server assigns an id when the client omits one")
}

func TestDetectAction(t *testing.T) {
	f := startFixture(t, networkTarget())
	f.prober.guess = printer.GuessIPL

	f.send(t, Request{ID: "detect-1", Action: ActionDetect})

	env := f.recv(t)
	assert.True(t, env.OK)
	var res DetectResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, "ipl", res.Language)
	assert.Equal(t, 1, f.prober.calls)
}

func TestDetectNeedsNetworkTarget(t *testing.T) {
	f := startFixture(t, printer.Target{Mode: printer.ModeUSB})

	f.send(t, Request{Action: ActionDetect})

	env := f.recv(t)
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "network printer target")
}

func TestStatusAction(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{ID: "status-1", Action: ActionStatus})

	env := f.recv(t)
	assert.True(t, env.OK)

	var res StatusResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, Version, res.Version)
	assert.Equal(t, "disconnected", res.ReaderState)
	assert.Equal(t, "network", res.PrinterMode)
	assert.Equal(t, "192.0.2.10", res.PrinterHost)
	assert.Equal(t, 9100, res.PrinterPort)
	assert.Equal(t, "zpl", res.Language)
}

func TestUnknownAction(t *testing.T) {
	f := startFixture(t, networkTarget())

	f.send(t, Request{ID: "bogus-1", Action: "reboot"})

	env := f.recv(t)
	assert.Equal(t, "bogus-1", env.ID)
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "unknown action")
}

func TestServerStartStop(t *testing.T) {
	sender := &recordingSender{}
	prober := &fixedProber{}
	coord := printer.NewCoordinator(sender, sender, prober, "", zerolog.Nop())
	srv := New(coord, reader.NewSimulated(), prober, Config{Address: "127.0.0.1:0"}, zerolog.Nop())

	require.NoError(t, srv.StartAsync())
	assert.True(t, srv.IsRunning())

	err := srv.StartAsync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())

	// Double stop is a no-op.
	assert.NoError(t, srv.Stop())
}

func TestServerInvalidAddress(t *testing.T) {
	sender := &recordingSender{}
	prober := &fixedProber{}
	coord := printer.NewCoordinator(sender, sender, prober, "", zerolog.Nop())
	srv := New(coord, reader.NewSimulated(), prober, Config{Address: "invalid:address:9100"}, zerolog.Nop())

	err := srv.StartAsync()
	assert.Error(t, err)
	assert.False(t, srv.IsRunning())
}
