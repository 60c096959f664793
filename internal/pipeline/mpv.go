package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Property observation ids chosen at connect time.
const (
	obsPause     = 1
	obsMetadata  = 2
	obsBuffering = 3
	obsCoreIdle  = 4
)

// MpvPipeline drives an mpv subprocess over its JSON IPC socket and adapts
// its event stream to the Pipeline bus contract.
type MpvPipeline struct {
	cmd  *exec.Cmd
	conn net.Conn
	log  *slog.Logger

	mu        sync.Mutex
	uri       string
	state     State
	requestID int
	pending   map[int]chan mpvResponse
	closed    bool

	bus chan Message
}

type mpvResponse struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	RequestID int             `json:"request_id"`
}

type mpvEvent struct {
	Event     string          `json:"event"`
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error"`
	RequestID int             `json:"request_id"`
}

// NewMpvPipeline spawns mpv in idle mode and connects to its IPC socket.
func NewMpvPipeline(log *slog.Logger) (*MpvPipeline, error) {
	socket := fmt.Sprintf("/tmp/lcdradio-mpv-%d.sock", os.Getpid())
	_ = os.Remove(socket)

	cmd := exec.Command("mpv",
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--input-ipc-server="+socket,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	conn, err := waitForSocket(socket, 5*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("connect mpv ipc: %w", err)
	}

	p := &MpvPipeline{
		cmd:     cmd,
		conn:    conn,
		log:     log,
		state:   StateNull,
		pending: make(map[int]chan mpvResponse),
		bus:     make(chan Message, 64),
	}
	go p.readLoop()

	for id, prop := range map[int]string{
		obsPause:     "pause",
		obsMetadata:  "metadata",
		obsBuffering: "cache-buffering-state",
		obsCoreIdle:  "core-idle",
	} {
		if err := p.command(nil, "observe_property", id, prop); err != nil {
			p.Close()
			return nil, fmt.Errorf("observe %s: %w", prop, err)
		}
	}
	return p, nil
}

func waitForSocket(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (p *MpvPipeline) SetURI(uri string) {
	p.mu.Lock()
	p.uri = uri
	p.mu.Unlock()
}

func (p *MpvPipeline) SetState(s State) error {
	p.mu.Lock()
	uri := p.uri
	prev := p.state
	p.mu.Unlock()

	var err error
	switch s {
	case StatePlaying:
		if prev == StatePaused {
			err = p.command(nil, "set_property", "pause", false)
		} else {
			if err = p.command(nil, "loadfile", uri, "replace"); err == nil {
				err = p.command(nil, "set_property", "pause", false)
			}
		}
	case StatePaused:
		err = p.command(nil, "set_property", "pause", true)
	case StateNull, StateReady:
		err = p.command(nil, "stop")
	default:
		return fmt.Errorf("cannot request state %s", s)
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.emit(Message{Kind: MessageStateChanged, State: s, FromPlaybin: true})
	return nil
}

// SetVolumeDB converts the dB gain to mpv's linear percentage scale.
func (p *MpvPipeline) SetVolumeDB(db float64) error {
	percent := 100 * math.Pow(10, db/20)
	if percent < 0 {
		percent = 0
	}
	return p.command(nil, "set_property", "volume", percent)
}

func (p *MpvPipeline) QueryPosition() (time.Duration, bool) {
	secs, err := p.getFloat("time-pos")
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (p *MpvPipeline) QueryDuration() (time.Duration, bool) {
	secs, err := p.getFloat("duration")
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (p *MpvPipeline) Seek(to time.Duration) error {
	return p.command(nil, "seek", to.Seconds(), "absolute+keyframes")
}

func (p *MpvPipeline) Bus() <-chan Message { return p.bus }

func (p *MpvPipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.command(nil, "quit")
	_ = p.conn.Close()
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
	}
	return nil
}

func (p *MpvPipeline) getFloat(prop string) (float64, error) {
	var raw json.RawMessage
	if err := p.commandSync(&raw, "get_property", prop); err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// command fires a request without waiting for its reply.
func (p *MpvPipeline) command(_ *json.RawMessage, args ...any) error {
	return p.send(0, args)
}

// commandSync waits for the matching response and decodes its data.
func (p *MpvPipeline) commandSync(out *json.RawMessage, args ...any) error {
	p.mu.Lock()
	p.requestID++
	id := p.requestID
	ch := make(chan mpvResponse, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.send(id, args); err != nil {
		return err
	}
	select {
	case resp := <-ch:
		if resp.Error != "success" {
			return errors.New(resp.Error)
		}
		*out = resp.Data
		return nil
	case <-time.After(time.Second):
		return errors.New("mpv ipc timeout")
	}
}

func (p *MpvPipeline) send(requestID int, args []any) error {
	req := map[string]any{"command": args}
	if requestID != 0 {
		req["request_id"] = requestID
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("pipeline closed")
	}
	_, err = p.conn.Write(append(payload, '\n'))
	return err
}

func (p *MpvPipeline) readLoop() {
	defer close(p.bus)
	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev mpvEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			p.log.Warn("bad mpv ipc line", "error", err)
			continue
		}
		if ev.RequestID != 0 && ev.Event == "" {
			p.mu.Lock()
			ch := p.pending[ev.RequestID]
			p.mu.Unlock()
			if ch != nil {
				ch <- mpvResponse{Error: ev.Error, Data: ev.Data, RequestID: ev.RequestID}
			}
			continue
		}
		p.handleEvent(ev)
	}
}

func (p *MpvPipeline) handleEvent(ev mpvEvent) {
	switch ev.Event {
	case "property-change":
		p.handleProperty(ev)
	case "playback-restart":
		p.emit(Message{Kind: MessageStateChanged, State: StatePlaying, FromPlaybin: true})
	case "end-file":
		switch ev.Reason {
		case "eof":
			p.emit(Message{Kind: MessageEos})
		case "error":
			p.emit(Message{Kind: MessageError, ErrorText: ev.Error})
		}
	}
}

func (p *MpvPipeline) handleProperty(ev mpvEvent) {
	switch ev.ID {
	case obsPause:
		var paused bool
		if json.Unmarshal(ev.Data, &paused) != nil {
			return
		}
		state := StatePlaying
		if paused {
			state = StatePaused
		}
		p.mu.Lock()
		p.state = state
		p.mu.Unlock()
		p.emit(Message{Kind: MessageStateChanged, State: state, FromPlaybin: true})
	case obsMetadata:
		var meta map[string]string
		if json.Unmarshal(ev.Data, &meta) != nil {
			return
		}
		for key, tag := range map[string]string{
			"icy-name":     "organization",
			"icy-title":    "title",
			"title":        "title",
			"artist":       "artist",
			"organization": "organization",
		} {
			if v, ok := meta[key]; ok && v != "" {
				p.emit(Message{Kind: MessageTag, TagName: tag, TagValue: v})
			}
		}
	case obsBuffering:
		var percent float64
		if json.Unmarshal(ev.Data, &percent) != nil {
			return
		}
		p.emit(Message{Kind: MessageBuffering, Percent: int(percent)})
	}
}

func (p *MpvPipeline) emit(m Message) {
	select {
	case p.bus <- m:
	default:
		p.log.Warn("pipeline bus full, dropping message", "kind", m.Kind)
	}
}

var _ Pipeline = (*MpvPipeline)(nil)
