package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// Barcode implements domain.BarcodeDecoder against an HTTP decode service
// that accepts raw image bytes and answers with the recognized code.
type Barcode struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

type BarcodeConfig struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewBarcode(cfg BarcodeConfig) *Barcode {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Barcode{
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/decode",
		client:   SharedHTTPClient(cfg.Timeout),
		logger:   cfg.Logger.With("component", "collaborator.barcode"),
	}
}

// Decode posts the image to the decode service. A 404 or an empty code in
// the response means the image held no recognizable barcode.
func (b *Barcode) Decode(ctx context.Context, image io.Reader) (string, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	resp, err := doWithRetry(ctx, b.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(string(data)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, b.logger)
	if err != nil {
		return "", fmt.Errorf("barcode decode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.ErrCodeNotRecognized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("barcode decode: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("barcode decode: decode response: %w", err)
	}
	if payload.Code == "" {
		return "", domain.ErrCodeNotRecognized
	}
	return payload.Code, nil
}
