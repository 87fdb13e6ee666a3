package deterrent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/errors"
)

// HTTPController talks to the deterrent hardware endpoint over HTTP.
// It is the production Controller implementation; tests use stubs.
type HTTPController struct {
	baseURL string
	client  *http.Client
}

// NewHTTPController creates a controller for the given base URL.
func NewHTTPController(baseURL string) *HTTPController {
	return &HTTPController{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type activateRequest struct {
	SoundType string `json:"sound_type"`
}

type activateResponse struct {
	Success      bool   `json:"success"`
	ActivationID string `json:"activation_id"`
	Message      string `json:"message"`
}

type stopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type effectivenessResponse struct {
	Success              bool    `json:"success"`
	EffectivenessPercent float64 `json:"effectiveness_percent"`
}

// Activate implements Controller.
func (c *HTTPController) Activate(ctx context.Context, soundType string) (*ActivationResult, error) {
	body, err := json.Marshal(activateRequest{SoundType: soundType})
	if err != nil {
		return nil, err
	}

	var resp activateResponse
	if err := c.post(ctx, "/activate", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Newf("controller refused activation: %s", resp.Message).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("sound_type", soundType).
			Build()
	}

	return &ActivationResult{
		ActivationID: resp.ActivationID,
		Message:      resp.Message,
	}, nil
}

// Stop implements Controller.
func (c *HTTPController) Stop(ctx context.Context) error {
	var resp stopResponse
	if err := c.post(ctx, "/stop", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.Newf("controller refused stop: %s", resp.Message).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Build()
	}
	return nil
}

// MeasureEffectiveness implements Controller. A failed or refused
// reading is reported as unavailable, not as an error value.
func (c *HTTPController) MeasureEffectiveness(ctx context.Context, activationID string, window time.Duration) (Measurement, error) {
	url := fmt.Sprintf("%s/effectiveness?activation_id=%s&window_seconds=%d",
		c.baseURL, activationID, int(window.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Measurement{}, err
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return Measurement{}, errors.New(err).
			Component("deterrent").
			Category(errors.CategoryEffectiveness).
			Context("activation_id", activationID).
			Build()
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return Measurement{}, errors.Newf("controller returned status %d", httpResp.StatusCode).
			Component("deterrent").
			Category(errors.CategoryEffectiveness).
			Context("activation_id", activationID).
			Build()
	}

	var resp effectivenessResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Measurement{}, err
	}

	return Measurement{
		Available: resp.Success,
		Percent:   resp.EffectivenessPercent,
	}, nil
}

func (c *HTTPController) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("path", path).
			Build()
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return errors.Newf("controller returned status %d", httpResp.StatusCode).
			Component("deterrent").
			Category(errors.CategoryDispatch).
			Context("path", path).
			Build()
	}

	return json.NewDecoder(httpResp.Body).Decode(out)
}
