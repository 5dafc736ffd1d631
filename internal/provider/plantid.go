package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
)

// PlantIDProvider identifies plants through the Plant.id API.
type PlantIDProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	debug      bool
}

// NewPlantIDProvider creates a Plant.id client from the settings.
func NewPlantIDProvider(settings *conf.Settings) *PlantIDProvider {
	return &PlantIDProvider{
		apiKey:     settings.Provider.PlantID.APIKey,
		endpoint:   settings.Provider.PlantID.Endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		debug:      settings.Debug,
	}
}

func (p *PlantIDProvider) Name() string { return "plantid" }

func (p *PlantIDProvider) Configured() bool { return p.apiKey != "" }

// Identify submits the images base64-encoded and returns the top suggestion.
func (p *PlantIDProvider) Identify(ctx context.Context, images [][]byte) (*Identification, error) {
	if !p.Configured() {
		return nil, errors.Newf("plantid API key is not configured").
			Component("provider").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(images) == 0 {
		return nil, errors.ValidationError("no images to identify")
	}

	reqID := uuid.New().String()[:8]
	logger := getLogger().With("request_id", reqID, "provider", "plantid")

	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img))
	}

	payload, err := json.Marshal(map[string]any{
		"images":         encoded,
		"similar_images": true,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryProvider).
			Context("operation", "marshal_request").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	logger.Info("Submitting identification request", "image_count", len(images))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("provider", "plantid").
			Context("request_id", reqID).
			Build()
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("provider", "plantid").
			Build()
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		logger.Warn("Identification request failed",
			"status", resp.StatusCode,
			"body", truncate(string(body), 200))
		return nil, statusError("plantid", resp.StatusCode)
	}

	ident, err := parsePlantIDResponse(body)
	if err != nil {
		logger.Info("No identification in response", "error", err)
		return nil, err
	}

	logger.Info("Identification received",
		"scientific_name", ident.ScientificName,
		"probability", ident.Probability)
	return ident, nil
}

// parsePlantIDResponse extracts the top suggestion. The API has shipped two
// response layouts over time, suggestions nested under result.classification
// and suggestions at the top level, so both are probed.
func parsePlantIDResponse(body []byte) (*Identification, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryProvider).
			Context("operation", "parse_response").
			Build()
	}

	suggestions, err := obj.GetObjectArray("result", "classification", "suggestions")
	if err != nil {
		suggestions, err = obj.GetObjectArray("suggestions")
	}
	if err != nil || len(suggestions) == 0 {
		return nil, ErrNoMatch
	}

	top := suggestions[0]
	ident := &Identification{}

	// Scientific name: "name" in the nested layout, "plant_name" in the flat one.
	if name, err := top.GetString("name"); err == nil {
		ident.ScientificName = name
	} else if name, err := top.GetString("plant_name"); err == nil {
		ident.ScientificName = name
	}
	if ident.ScientificName == "" {
		return nil, ErrNoMatch
	}

	if prob, err := top.GetFloat64("probability"); err == nil {
		ident.Probability = prob
	}

	// Common name and description live under "details" or "plant_details"
	// depending on the layout.
	for _, detailsKey := range []string{"details", "plant_details"} {
		if names, err := top.GetStringArray(detailsKey, "common_names"); err == nil && len(names) > 0 {
			ident.CommonName = names[0]
		}
		if desc, err := top.GetString(detailsKey, "description", "value"); err == nil {
			ident.Description = desc
		} else if desc, err := top.GetString(detailsKey, "wiki_description", "value"); err == nil {
			ident.Description = desc
		}
	}

	return ident, nil
}
