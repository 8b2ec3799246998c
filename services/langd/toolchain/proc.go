// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// procRequest is one framed request to the toolchain process.
type procRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// procResponse is one framed reply from the toolchain process.
type procResponse struct {
	ID     int64           `json:"id"`
	Result *Result         `json:"result,omitempty"`
	Error  *procReplyError `json:"error,omitempty"`
}

// procReplyError is a toolchain-reported request failure.
type procReplyError struct {
	Message string `json:"message"`
}

// crashReply is the synthetic error message failAllPending injects so
// waiters can distinguish process death from a toolchain-reported error.
const crashReply = "toolchain process terminated"

// projectParams carries a compile_project request.
type projectParams struct {
	Root      string `json:"root"`
	ForceFull bool   `json:"force_full"`
}

// fileParams carries a compile_file request.
type fileParams struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// =============================================================================
// PROC
// =============================================================================

// ProcConfig configures an out-of-process toolchain.
type ProcConfig struct {
	// Command is the toolchain binary. Resolved via PATH.
	Command string

	// Args are passed to the binary.
	Args []string

	// Dir is the working directory for the process (usually the
	// project root).
	Dir string

	// ShutdownGrace is how long Stop waits for the process to exit
	// after stdin closes before killing it. Default 5s.
	ShutdownGrace time.Duration
}

// Proc is a Toolchain served by an external process.
//
// Description:
//
//	Proc launches the configured binary and exchanges Content-Length
//	framed JSON messages over its stdin/stdout. Each request carries an
//	id; replies are correlated by id, so the external tool may answer
//	out of order. Process death is detected by the read loop and
//	reported to in-flight requests as ErrToolchainCrashed.
//
// Thread Safety:
//
//	Safe for concurrent use, though the worker layer serializes compile
//	calls per project anyway.
type Proc struct {
	cfg ProcConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *bufio.Reader
	started bool

	writeMu sync.Mutex

	nextID    int64
	pending   map[int64]chan procResponse
	pendingMu sync.Mutex

	closed   int32 // atomic: 1 when the process is gone
	readDone chan struct{}
}

// NewProc creates a Proc (not started).
func NewProc(cfg ProcConfig) *Proc {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Proc{cfg: cfg}
}

// Start launches the toolchain process.
//
// Description:
//
//	Synchronous: when Start returns nil the process is running and the
//	read loop is consuming its stdout. Start failure is fatal for the
//	owning project's compile capability and is not retried here.
//
// Errors:
//
//	ErrAlreadyStarted - Start called on a running Proc
//	ErrStartFailed - binary missing or process could not launch
func (p *Proc) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	path, err := exec.LookPath(p.cfg.Command)
	if err != nil {
		slog.Warn("toolchain binary not found",
			slog.String("command", p.cfg.Command))
		return fmt.Errorf("%w: %s", ErrStartFailed, p.cfg.Command)
	}

	cmd := exec.Command(path, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrStartFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrStartFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	slog.Info("toolchain process started",
		slog.String("command", path),
		slog.String("dir", p.cfg.Dir),
		slog.Int("pid", cmd.Process.Pid))

	p.cmd = cmd
	p.stdin = stdin
	p.reader = bufio.NewReader(stdout)
	p.pending = make(map[int64]chan procResponse)
	p.readDone = make(chan struct{})
	atomic.StoreInt32(&p.closed, 0)
	p.started = true

	go p.readLoop(p.reader, p.readDone)
	return nil
}

// CompileProject implements Toolchain.
func (p *Proc) CompileProject(ctx context.Context, root string, forceFull bool) (*Result, error) {
	return p.send(ctx, "compile_project", projectParams{Root: root, ForceFull: forceFull})
}

// CompileFile implements Toolchain.
func (p *Proc) CompileFile(ctx context.Context, path string, src []byte) (*Result, error) {
	return p.send(ctx, "compile_file", fileParams{Path: path, Source: string(src)})
}

// Restart implements Restartable: tears the process down and launches a
// fresh one. Toolchain state never survives a crash.
func (p *Proc) Restart(ctx context.Context) error {
	p.Stop(ctx)
	return p.Start(ctx)
}

// Stop terminates the process. Idempotent.
func (p *Proc) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	atomic.StoreInt32(&p.closed, 1)

	// Closing stdin signals EOF; a well-behaved toolchain exits.
	if p.stdin != nil {
		_ = p.stdin.Close()
	}

	if p.cmd != nil && p.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(p.cfg.ShutdownGrace):
			_ = p.cmd.Process.Kill()
			<-done
		}
	}

	if p.readDone != nil {
		select {
		case <-p.readDone:
		case <-time.After(time.Second):
		}
	}

	p.failAllPending()
	p.cmd = nil
	p.stdin = nil
	p.reader = nil
}

// send issues one framed request and waits for its reply.
func (p *Proc) send(ctx context.Context, method string, params interface{}) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	p.mu.Lock()
	started := p.started
	stdin := p.stdin
	readDone := p.readDone
	p.mu.Unlock()
	if !started || atomic.LoadInt32(&p.closed) == 1 {
		return nil, ErrNotStarted
	}

	id := atomic.AddInt64(&p.nextID, 1)
	respCh := make(chan procResponse, 1)
	p.pendingMu.Lock()
	p.pending[id] = respCh
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	req := procRequest{ID: id, Method: method, Params: params}
	if err := p.writeMessage(stdin, req); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrToolchainCrashed, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-readDone:
		return nil, ErrToolchainCrashed
	case resp := <-respCh:
		if resp.Error != nil {
			if resp.Error.Message == crashReply {
				return nil, ErrToolchainCrashed
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, resp.Error.Message)
		}
		if resp.Result == nil {
			return nil, fmt.Errorf("%w: reply carries no result", ErrInvalidResponse)
		}
		return resp.Result, nil
	}
}

// writeMessage marshals and writes one Content-Length framed message.
func (p *Proc) writeMessage(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readLoop consumes framed replies until the process closes its stdout.
func (p *Proc) readLoop(reader *bufio.Reader, done chan struct{}) {
	defer close(done)
	defer atomic.StoreInt32(&p.closed, 1)
	defer p.failAllPending()

	for {
		body, err := readFramed(reader)
		if err != nil {
			if err != io.EOF && atomic.LoadInt32(&p.closed) == 0 {
				slog.Warn("toolchain read loop terminated",
					slog.String("error", err.Error()))
			}
			return
		}

		var resp procResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			slog.Warn("discarding unparseable toolchain reply",
				slog.String("error", err.Error()))
			continue
		}

		p.pendingMu.Lock()
		ch, ok := p.pending[resp.ID]
		p.pendingMu.Unlock()
		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

// failAllPending wakes every in-flight request with a crash reply.
func (p *Proc) failAllPending() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- procResponse{ID: id, Error: &procReplyError{Message: crashReply}}:
		default:
		}
		delete(p.pending, id)
	}
}

// readFramed reads one Content-Length framed message.
func readFramed(reader *bufio.Reader) ([]byte, error) {
	var contentLength int
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			lenStr := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLength, err = strconv.Atoi(lenStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length value %q: %w", lenStr, err)
			}
			if contentLength < 0 {
				return nil, fmt.Errorf("negative Content-Length: %d", contentLength)
			}
		}
		// Other headers ignored.
	}
	if contentLength == 0 {
		return nil, fmt.Errorf("missing or zero Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
