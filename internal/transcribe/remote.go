package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/subtitle"
)

// RemoteBackend sends audio to a hosted transcription API.
type RemoteBackend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewRemoteBackend creates a remote transcription backend.
func NewRemoteBackend(client *http.Client, baseURL, apiKey string, logger *slog.Logger) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteBackend{client: client, baseURL: baseURL, apiKey: apiKey, logger: logger}
}

// remoteResponse is the verbose transcription payload.
type remoteResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio as multipart form data and maps the response
// segments to cues. The remote API reports no intermediate progress.
func (b *RemoteBackend) Transcribe(ctx context.Context, req Request, onProgress func(percent float64)) (*Result, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("remote transcription API not configured")
	}

	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("buffering audio: %w", err)
	}
	if req.SourceLang != "" && req.SourceLang != "auto" {
		if err := mw.WriteField("language", req.SourceLang); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling remote transcription API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("remote transcription API returned %d: %s", resp.StatusCode, payload)
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding remote transcription response: %w", err)
	}

	result, err := mapRemoteResponse(&parsed, req.SourceLang)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return result, nil
}

func mapRemoteResponse(parsed *remoteResponse, sourceLang string) (*Result, error) {
	if len(parsed.Segments) == 0 {
		return nil, fmt.Errorf("remote transcription produced no segments")
	}

	segments := make([]subtitle.Cue, 0, len(parsed.Segments))
	for i, s := range parsed.Segments {
		if s.End <= s.Start {
			continue
		}
		segments = append(segments, subtitle.Cue{
			Index: i + 1,
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
			Text:  s.Text,
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("remote transcription produced no usable segments")
	}

	detected := parsed.Language
	if detected == "" {
		detected = sourceLang
	}
	return &Result{
		Segments:     segments,
		DetectedLang: detected,
		ModelUsed:    models.ModelRemoteAPI,
	}, nil
}
