package shell

import (
	"os/exec"
)

// Process is a started command that can be reaped.
type Process interface {
	PID() int
	Wait() error
}

// Runner starts commands without waiting for them.
type Runner interface {
	Start(command Command) (Process, error)
}

type execRunner struct{}

type execProcess struct {
	cmd *exec.Cmd
}

func (execRunner) Start(command Command) (Process, error) {
	cmd := exec.Command(command.Name, command.Args...)
	cmd.Dir = command.Dir
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

func (process execProcess) PID() int {
	if process.cmd.Process == nil {
		return 0
	}
	return process.cmd.Process.Pid
}

func (process execProcess) Wait() error {
	return process.cmd.Wait()
}
