package browser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Driver runs one automation binary per instance and speaks the JSON-line
// protocol with it. The subprocess boundary is the crash isolation the
// scheduler relies on: a wedged or segfaulting browser is one Kill() away
// from being reclaimed.
type Driver struct {
	kind Kind
	argv []string
}

// NewDriver builds an Engine backed by the given driver command.
func NewDriver(kind Kind, argv []string) (*Driver, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("browser: %s: driver command is empty", kind)
	}
	return &Driver{kind: kind, argv: append([]string(nil), argv...)}, nil
}

func (d *Driver) Kind() Kind { return d.kind }

func (d *Driver) Launch(ctx context.Context) (Instance, error) {
	cmd := exec.CommandContext(ctx, d.argv[0], d.argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("browser: %s: stdin pipe: %w", d.kind, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("browser: %s: stdout pipe: %w", d.kind, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("browser: %s: launch driver: %w", d.kind, err)
	}

	inst := &driverInstance{
		kind:    d.kind,
		cmd:     cmd,
		stdin:   stdin,
		pending: map[uint64]chan driverResponse{},
		done:    make(chan struct{}),
	}
	go inst.readLoop(stdout)
	return inst, nil
}

type driverInstance struct {
	kind Kind
	cmd  *exec.Cmd

	writeMu sync.Mutex
	stdin   io.WriteCloser

	seq uint64

	mu      sync.Mutex
	pending map[uint64]chan driverResponse
	closed  bool

	done chan struct{}
}

// readLoop dispatches driver responses to their waiting callers. It exits
// when the driver's stdout closes (clean shutdown, crash, or Kill), at which
// point every pending call is failed.
func (di *driverInstance) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var resp driverResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		di.mu.Lock()
		ch := di.pending[resp.ID]
		delete(di.pending, resp.ID)
		di.mu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}

	di.mu.Lock()
	di.closed = true
	waiters := di.pending
	di.pending = map[uint64]chan driverResponse{}
	di.mu.Unlock()
	for id, ch := range waiters {
		ch <- driverResponse{ID: id, OK: false, Err: "driver exited"}
	}
	close(di.done)
}

func (di *driverInstance) call(ctx context.Context, req driverRequest) (driverResponse, error) {
	req.ID = atomic.AddUint64(&di.seq, 1)
	ch := make(chan driverResponse, 1)

	di.mu.Lock()
	if di.closed {
		di.mu.Unlock()
		return driverResponse{}, fmt.Errorf("browser: %s: driver exited", di.kind)
	}
	di.pending[req.ID] = ch
	di.mu.Unlock()

	b, err := json.Marshal(req)
	if err != nil {
		di.dropPending(req.ID)
		return driverResponse{}, err
	}
	b = append(b, '\n')

	di.writeMu.Lock()
	_, err = di.stdin.Write(b)
	di.writeMu.Unlock()
	if err != nil {
		di.dropPending(req.ID)
		return driverResponse{}, fmt.Errorf("browser: %s: write to driver: %w", di.kind, err)
	}

	select {
	case <-ctx.Done():
		di.dropPending(req.ID)
		return driverResponse{}, ctx.Err()
	case resp := <-ch:
		if !resp.OK {
			return resp, fmt.Errorf("browser: %s: %s", di.kind, respErr(resp))
		}
		return resp, nil
	}
}

func (di *driverInstance) dropPending(id uint64) {
	di.mu.Lock()
	delete(di.pending, id)
	di.mu.Unlock()
}

func respErr(resp driverResponse) string {
	if resp.Err != "" {
		return resp.Err
	}
	return "driver request failed"
}

func (di *driverInstance) NewPage(ctx context.Context) (Page, error) {
	resp, err := di.call(ctx, driverRequest{Op: opNewPage})
	if err != nil {
		return nil, err
	}
	if resp.Page == "" {
		return nil, fmt.Errorf("browser: %s: driver returned no page id", di.kind)
	}
	return &driverPage{inst: di, id: resp.Page}, nil
}

func (di *driverInstance) Close() error {
	// Best-effort graceful shutdown; fall back to Kill if the driver does not
	// exit promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := di.call(ctx, driverRequest{Op: opShutdown})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		// Driver may already be gone; that's a clean enough close.
		err = nil
	}

	select {
	case <-di.done:
	case <-time.After(5 * time.Second):
		di.Kill()
		<-di.done
	}
	_ = di.stdin.Close()
	return errors.Join(err, waitIgnoringExit(di.cmd))
}

func (di *driverInstance) Kill() {
	if di.cmd.Process != nil {
		_ = di.cmd.Process.Kill()
	}
}

// waitIgnoringExit reaps the child; nonzero exits are expected after
// shutdown/kill and are not an error for the caller.
func waitIgnoringExit(cmd *exec.Cmd) error {
	err := cmd.Wait()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return nil
	}
	if err != nil && strings.Contains(err.Error(), "already called") {
		return nil
	}
	return err
}

type driverPage struct {
	inst *driverInstance
	id   string
}

func (p *driverPage) Navigate(ctx context.Context, url string) (int, error) {
	resp, err := p.inst.call(ctx, driverRequest{Op: opNavigate, Page: p.id, URL: url})
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

func (p *driverPage) WaitIndicator(ctx context.Context, successSel, errorSel string) (Indicator, error) {
	var timeoutMS int64
	if dl, ok := ctx.Deadline(); ok {
		timeoutMS = time.Until(dl).Milliseconds()
	}
	resp, err := p.inst.call(ctx, driverRequest{
		Op:              opWaitIndicator,
		Page:            p.id,
		SuccessSelector: successSel,
		ErrorSelector:   errorSel,
		TimeoutMS:       timeoutMS,
	})
	if err != nil {
		return IndicatorNone, err
	}
	switch resp.Indicator {
	case "success":
		return IndicatorSuccess, nil
	case "error":
		return IndicatorError, nil
	}
	return IndicatorNone, fmt.Errorf("browser: %s: no indicator appeared", p.inst.kind)
}

func (p *driverPage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := p.inst.call(ctx, driverRequest{Op: opClosePage, Page: p.id})
	return err
}
