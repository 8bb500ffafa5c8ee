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

// PaidService translates through the paid API. Each text in the batch is a
// separate form field, so order and count are preserved by the service.
type PaidService struct {
	client   *http.Client
	endpoint string
	authKey  string
}

// NewPaidService creates a PaidService.
func NewPaidService(client *http.Client, endpoint, authKey string) *PaidService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PaidService{client: client, endpoint: endpoint, authKey: authKey}
}

// Service implements Backend.
func (s *PaidService) Service() models.TranslationService {
	return models.ServicePaid
}

type paidResponse struct {
	Translations []struct {
		Text                   string `json:"text"`
		DetectedSourceLanguage string `json:"detected_source_language"`
	} `json:"translations"`
}

// TranslateBatch implements Backend.
func (s *PaidService) TranslateBatch(ctx context.Context, texts []string, src, tgt string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if s.authKey == "" {
		return nil, fmt.Errorf("paid translation service has no auth key configured")
	}

	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	form.Set("target_lang", strings.ToUpper(tgt))
	if src != "" && src != "auto" {
		form.Set("source_lang", strings.ToUpper(src))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+s.authKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling paid translation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var parsed paidResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing paid translation response: %w", err)
	}
	if len(parsed.Translations) != len(texts) {
		return nil, fmt.Errorf("paid translation returned %d results for %d inputs", len(parsed.Translations), len(texts))
	}

	out := make([]string, len(parsed.Translations))
	for i, tr := range parsed.Translations {
		out[i] = tr.Text
	}
	return out, nil
}
