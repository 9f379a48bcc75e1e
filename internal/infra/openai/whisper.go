package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"drive-in/internal/application"
	"drive-in/internal/infra"
)

type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	language   string
	model      string
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, "https://api.openai.com/v1")
}

func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	if language == "" {
		language = "en"
	}
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		language:   language,
		model:      "whisper-1",
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe turns a WAV clip into text. Silence or an empty transcript
// returns application.ErrNoInput.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var result transcriptionResponse

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", "audio.wav")
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating form file: %w", err))
		}

		if _, err = part.Write(audio); err != nil {
			return infra.Permanent(fmt.Errorf("writing audio: %w", err))
		}

		if err = writer.WriteField("model", c.model); err != nil {
			return infra.Permanent(fmt.Errorf("writing model field: %w", err))
		}

		if err = writer.WriteField("language", c.language); err != nil {
			return infra.Permanent(fmt.Errorf("writing language field: %w", err))
		}

		if err = writer.Close(); err != nil {
			return infra.Permanent(fmt.Errorf("closing writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return infra.StatusError("whisper", resp.StatusCode, respBody)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("decoding response: %w", err))
		}

		return nil
	})

	if retryErr != nil {
		return "", retryErr
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", application.ErrNoInput
	}

	return text, nil
}
