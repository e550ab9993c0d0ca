package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth bridges to a local synthesis command. The command receives a
// JSON request on stdin and writes the encoded audio payload to stdout.
type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text         string  `json:"text"`
	ModelUUID    string  `json:"model_uuid"`
	SpeakingRate float64 `json:"speaking_rate"`
}

func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synthesis command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:         req.Text,
		ModelUUID:    req.ModelUUID,
		SpeakingRate: req.SpeakingRate,
	})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("synthesis command failed: %w: %s", err, stderr.String())
		}
		return nil, fmt.Errorf("synthesis command failed: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("synthesis command produced no audio")
	}
	return stdout.Bytes(), nil
}
