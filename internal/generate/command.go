package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/mbleigh/genthetic/internal/pipeline"
)

// CommandService implements Service by invoking a local executable per
// request: the request is written to the command's stdin as JSON and
// the records are read back from stdout. Useful for generator scripts
// that wrap a local model, or for fixture generators in development.
type CommandService struct {
	command string
	args    []string
}

// NewCommandService creates a subprocess-backed generation service.
func NewCommandService(command string, args ...string) *CommandService {
	return &CommandService{command: command, args: args}
}

// Generate implements Service.
func (s *CommandService) Generate(ctx context.Context, req Request) (pipeline.Batch, error) {
	payload, err := json.Marshal(generateRequest{
		Count:        req.Count,
		Schema:       req.Schema,
		Instructions: req.Instructions,
		Hints:        req.Hints,
		Prior:        req.Prior,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	// Own process group, so cancelling the context terminates the whole
	// subprocess tree rather than just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = bytes.NewReader(payload)

	stdout, stderr, err := runCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("generator command failed: %w (stderr: %s)", err, truncate(stderr, 200))
	}

	var decoded generateResponse
	if err := json.Unmarshal(stdout, &decoded); err != nil {
		return nil, fmt.Errorf("decoding generator output: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("generator error: %s", decoded.Error)
	}
	if len(decoded.Records) != req.Count {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(decoded.Records), req.Count)
	}
	return decoded.Records, nil
}

// runCommand starts the command and drains stdout and stderr
// concurrently before waiting, so a chatty generator can't deadlock on
// a full pipe buffer.
func runCommand(cmd *exec.Cmd) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting command: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
}
