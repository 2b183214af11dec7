package urscript

import (
	"context"
	"time"
)

// monitor tracks one instrumented program.
type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the monitor and waits until it has exited.
func (m *monitor) stop() {
	m.cancel()
	<-m.done
}

// monitorResult is why a monitor loop ended.
type monitorResult int

const (
	resultCanceled monitorResult = iota
	resultFinished
	resultNeverStarted
	resultSafetyStop
	resultStalled
)

func (r monitorResult) String() string {
	switch r {
	case resultFinished:
		return "finished"
	case resultNeverStarted:
		return "never started"
	case resultSafetyStop:
		return "safety stop"
	case resultStalled:
		return "stalled"
	default:
		return "canceled"
	}
}

func (c *Client) startMonitor(programLen int) *monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(m.done)
		c.monitorTask(ctx, c.cfg.StartTimeout(programLen))
	}()

	return m
}

// monitorTask polls the status registers until the program finishes or fails, then
// sends the reset program and clears the running flag.
func (c *Client) monitorTask(ctx context.Context, startTimeout time.Duration) {
	result := c.pollProgram(ctx, startTimeout)

	switch result {
	case resultSafetyStop, resultStalled:
		c.store.SetProgramError(true)
		c.logger.Warn("program failed", "method", "monitorTask", "reason", result)
	case resultNeverStarted:
		c.logger.Warn("program did not start", "method", "monitorTask", "start_timeout", startTimeout)
	default:
		c.logger.Debug("program monitor exited", "method", "monitorTask", "reason", result)
	}
	c.store.SetProgramRunning(false)

	if err := c.write(context.Background(), ResetProgram); err != nil {
		c.logger.Error("failed to send reset program", "method", "monitorTask", "error", err)
	}
}

func (c *Client) pollProgram(ctx context.Context, startTimeout time.Duration) monitorResult {
	ticker := time.NewTicker(c.cfg.pollInterval)
	defer ticker.Stop()

	begin := time.Now()
	idle := 0
	for {
		select {
		case <-ctx.Done():
			return resultCanceled
		case <-ticker.C:
		}

		if c.store.StopRequested() || !c.store.ProgramRunning() {
			return resultCanceled
		}

		if c.store.SafetyStopped() {
			return resultSafetyStop
		}

		regs := c.store.StatusRegisters()
		switch {
		case !regs.Started:
			if time.Since(begin) > startTimeout {
				return resultNeverStarted
			}

		case regs.Finished:
			return resultFinished

		case c.store.RobotProgramRunning():
			idle = 0

		default:
			idle++
			if idle > c.cfg.idlePollLimit {
				return resultStalled
			}
		}
	}
}
