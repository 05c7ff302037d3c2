package corplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultEngineCommand is the tunnel engine binary.
	DefaultEngineCommand = "wg-corplink"

	envProtocolVersion = "CORPLINK_PROTOCOL_VERSION"
	envNetworkType     = "CORPLINK_NETWORK_TYPE"

	engineStopTimeout = 5 * time.Second
)

// Engine runs the tunnel data plane.
type Engine interface {
	Start(ctx context.Context, params TunnelParams) error
	Stop() error
}

// ExecEngine runs the tunnel engine as a foreground child process.
type ExecEngine struct {
	Command string
	Name    string

	// Output receives the engine's stdout and stderr. When nil they are discarded.
	Output io.Writer

	cmd  *exec.Cmd
	done chan struct{}
	lock sync.Mutex
}

func NewExecEngine(command, name string) *ExecEngine {
	if command == "" {
		command = DefaultEngineCommand
	}

	return &ExecEngine{Command: command, Name: name}
}

func (e *ExecEngine) Start(ctx context.Context, params TunnelParams) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.cmd != nil {
		return errors.New("engine already started")
	}

	if _, err := exec.LookPath(e.Command); err != nil {
		return fmt.Errorf("tunnel engine %s not found: %w", e.Command, err)
	}

	env := engineEnv(params)

	// The engine must outlive ctx so that teardown can still talk to it.
	cmd := exec.Command(e.Command, "-f", e.Name) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)

	if e.Output != nil {
		cmd.Stdout, cmd.Stderr = e.Output, e.Output
		cmd.WaitDelay = engineStopTimeout
	}

	logrus.WithFields(logrus.Fields{
		"pkg": "go-corplink",
		"cmd": e.Command,
		"env": env,
	}).Info("Starting tunnel engine")

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start tunnel engine: %w", err)
	}

	e.cmd = cmd
	e.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		if err := cmd.Wait(); err != nil {
			logrus.WithField("pkg", "go-corplink").WithError(err).Info("Tunnel engine exited")
		}
	}(e.done)

	return nil
}

// Stop interrupts the engine and waits for it to exit, killing it if it does not.
func (e *ExecEngine) Stop() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.cmd == nil {
		return nil
	}

	defer func() { e.cmd = nil }()

	if err := e.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop tunnel engine: %w", err)
	}

	select {
	case <-e.done:
		return nil

	case <-time.After(engineStopTimeout):
		logrus.WithField("pkg", "go-corplink").Warn("Tunnel engine did not exit, killing it")

		if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill tunnel engine: %w", err)
		}

		<-e.done

		return nil
	}
}

func engineEnv(params TunnelParams) []string {
	var env []string

	if params.ProtocolVersion == "v2" {
		env = append(env, envProtocolVersion+"=v2")
	}

	if params.Protocol == ProtocolTCP {
		env = append(env, envNetworkType+"=tcp")
	}

	return env
}
