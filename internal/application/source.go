package application

import (
	"context"
	"errors"

	"drive-in/internal/domain"
)

// ErrNoInput is returned by sources whose capture produced nothing usable.
// The assistant treats it as a silent re-prompt.
var ErrNoInput = errors.New("no input captured")

// ErrSourceClosed is returned once a source will never deliver again.
var ErrSourceClosed = errors.New("utterance source closed")

// UtteranceSource delivers customer input one capture at a time.
type UtteranceSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextCapture(ctx context.Context) (*domain.Capture, error)
	Name() string
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}
