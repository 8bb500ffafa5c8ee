package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxsub/voxsub/internal/models"
)

// FreeService translates through the public web translation endpoint. Texts
// in a batch are joined with newlines; the endpoint returns one response
// chunk per line, which maps back one-to-one.
type FreeService struct {
	client   *http.Client
	endpoint string
}

// NewFreeService creates a FreeService.
func NewFreeService(client *http.Client, endpoint string) *FreeService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FreeService{client: client, endpoint: endpoint}
}

// Service implements Backend.
func (s *FreeService) Service() models.TranslationService {
	return models.ServiceFree
}

// TranslateBatch implements Backend.
func (s *FreeService) TranslateBatch(ctx context.Context, texts []string, src, tgt string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Newlines inside a segment would break the line mapping; cue text is
	// flattened for the request and the renderer re-wraps.
	flat := make([]string, len(texts))
	for i, t := range texts {
		flat[i] = strings.ReplaceAll(t, "\n", " ")
	}

	params := url.Values{
		"client": {"gtx"},
		"sl":     {sourceParam(src)},
		"tl":     {tgt},
		"dt":     {"t"},
		"q":      {strings.Join(flat, "\n")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling free translation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return parseFreeResponse(body, len(texts))
}

// parseFreeResponse decodes the nested-array payload: the first element is a
// list of [translated, original, ...] chunks whose concatenation preserves
// the newline separators between input lines.
func parseFreeResponse(body []byte, want int) ([]string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing free translation response: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty free translation response")
	}

	var chunks [][]json.RawMessage
	if err := json.Unmarshal(payload[0], &chunks); err != nil {
		return nil, fmt.Errorf("parsing free translation chunks: %w", err)
	}

	var joined strings.Builder
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(chunk[0], &part); err != nil {
			continue
		}
		joined.WriteString(part)
	}

	lines := strings.Split(strings.TrimRight(joined.String(), "\n"), "\n")
	if len(lines) != want {
		return nil, fmt.Errorf("free translation returned %d lines for %d inputs", len(lines), want)
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, nil
}

func sourceParam(src string) string {
	if src == "" {
		return "auto"
	}
	return src
}
