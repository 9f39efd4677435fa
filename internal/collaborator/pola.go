package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

const defaultPolaAPIBase = "https://www.pola-app.pl/a/v3"

// Pola implements domain.ProductLookup against the Pola report API.
type Pola struct {
	apiBase  string
	deviceID string
	client   *http.Client
	logger   *slog.Logger
}

type PolaConfig struct {
	APIBase  string
	DeviceID string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewPola(cfg PolaConfig) *Pola {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultPolaAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pola{
		apiBase:  cfg.APIBase,
		deviceID: cfg.DeviceID,
		client:   SharedHTTPClient(cfg.Timeout),
		logger:   cfg.Logger.With("component", "collaborator.pola"),
	}
}

// polaResult is the wire shape of GET /get_by_code.
type polaResult struct {
	Name         string  `json:"name"`
	PlScore      int     `json:"plScore"`
	PlCapital    float64 `json:"plCapital"`
	PlWorkers    bool    `json:"plWorkers"`
	PlRnD        bool    `json:"plRnD"`
	PlRegistered bool    `json:"plRegistered"`
	PlNotGlobEnt bool    `json:"plNotGlobEnt"`
	Description  *string `json:"description"`
}

// ByCode queries the report for one EAN code.
func (p *Pola) ByCode(ctx context.Context, code string) (*domain.Result, error) {
	endpoint := fmt.Sprintf("%s/get_by_code?%s", p.apiBase, url.Values{
		"code":      {code},
		"device_id": {p.deviceID},
	}.Encode())

	resp, err := doWithRetry(ctx, p.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pola lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pola lookup: unexpected status %d", resp.StatusCode)
	}

	var wire polaResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("pola lookup: decode response: %w", err)
	}

	return &domain.Result{
		Score:                wire.PlScore,
		Name:                 wire.Name,
		CapitalShare:         wire.PlCapital,
		ProducesInPoland:     wire.PlWorkers,
		ResearchInPoland:     wire.PlRnD,
		RegisteredInPoland:   wire.PlRegistered,
		NotForeignSubsidiary: wire.PlNotGlobEnt,
		Description:          wire.Description,
	}, nil
}
