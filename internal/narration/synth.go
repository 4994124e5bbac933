package narration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandSynthesizer speaks through an external TTS program reading text on stdin
type CommandSynthesizer struct {
	Command string
	Args    []string
	// VoiceFlag precedes the language tag, e.g. "-v" for espeak-ng
	VoiceFlag   string
	GracePeriod time.Duration
}

// NewCommandSynthesizer returns a synthesizer for command, defaulting to espeak-ng
func NewCommandSynthesizer(command string) *CommandSynthesizer {
	s := &CommandSynthesizer{
		Command:     command,
		GracePeriod: 1200 * time.Millisecond,
	}
	if command == "" || command == "espeak-ng" {
		s.Command = "espeak-ng"
		s.Args = []string{"--stdin"}
		s.VoiceFlag = "-v"
	}
	return s
}

func (s *CommandSynthesizer) Speak(ctx context.Context, text, lang string) error {
	args := append([]string(nil), s.Args...)
	if s.VoiceFlag != "" && lang != "" {
		args = append(args, s.VoiceFlag, lang)
	}

	cmd := exec.CommandContext(ctx, s.Command, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = s.GracePeriod

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("failed to run %s: %w: %s", s.Command, err, msg)
		}
		return fmt.Errorf("failed to run %s: %w", s.Command, err)
	}
	return nil
}

// Silent pretends to read aloud at WordsPerMinute without producing audio.
// Zero finishes immediately.
type Silent struct {
	WordsPerMinute int
}

func (s Silent) Speak(ctx context.Context, text, _ string) error {
	if s.WordsPerMinute <= 0 {
		return nil
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(s.WordsPerMinute)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrInterrupted
	}
}
