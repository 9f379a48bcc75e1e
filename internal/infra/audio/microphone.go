//go:build portaudio
// +build portaudio

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"drive-in/internal/application"
	"drive-in/internal/domain"
)

const framesPerBuffer = 1024

// MicrophoneSource records one utterance at a time from the default input
// device, ending on a second of silence.
type MicrophoneSource struct {
	stream     *portaudio.Stream
	frame      []int16
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewMicrophoneSource records 16-bit PCM at the given rate and channel count.
func NewMicrophoneSource(format application.AudioFormat, logger *slog.Logger) *MicrophoneSource {
	if format.Channels < 1 {
		format.Channels = 1
	}
	return &MicrophoneSource{
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		logger:     logger,
		frame:      make([]int16, framesPerBuffer*format.Channels),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(m.channels, 0, float64(m.sampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	m.stream = stream

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sampleRate", m.sampleRate, "channels", m.channels)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	portaudio.Terminate()
	return nil
}

func (m *MicrophoneSource) NextCapture(ctx context.Context) (*domain.Capture, error) {
	m.logger.Debug("listening")

	perSecond := m.sampleRate * m.channels
	samples := make([]int16, 0, perSecond*5)
	var heard bool
	silence := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}

		if isSilent(m.frame) {
			silence += len(m.frame)
		} else {
			silence = 0
			heard = true
		}

		// Leading silence is not recorded.
		if heard {
			samples = append(samples, m.frame...)
		}

		if heard && silence > perSecond {
			break
		}
		if len(samples) > perSecond*10 {
			break
		}
	}

	if len(samples) < perSecond/4 {
		return nil, application.ErrNoInput
	}

	return domain.NewAudioCapture(samplesToWav(samples, m.sampleRate, m.channels)), nil
}

func samplesToWav(samples []int16, sampleRate, channels int) []byte {
	var buf bytes.Buffer

	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, int16(channels))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, int16(channels*2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
