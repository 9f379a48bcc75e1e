//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"errors"
	"log/slog"

	"drive-in/internal/application"
	"drive-in/internal/domain"
)

var errNoPortaudio = errors.New("microphone source not available: rebuild with -tags portaudio")

// MicrophoneSource stub when portaudio is not available
type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(_ application.AudioFormat, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	return errNoPortaudio
}

func (m *MicrophoneSource) Stop() error {
	return nil
}

func (m *MicrophoneSource) NextCapture(_ context.Context) (*domain.Capture, error) {
	return nil, errNoPortaudio
}
