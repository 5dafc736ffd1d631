package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
)

// PlantNetProvider identifies plants through the Pl@ntNet API.
type PlantNetProvider struct {
	apiKey     string
	endpoint   string
	project    string
	httpClient *http.Client
	debug      bool
}

// NewPlantNetProvider creates a Pl@ntNet client from the settings.
func NewPlantNetProvider(settings *conf.Settings) *PlantNetProvider {
	project := settings.Provider.PlantNet.Project
	if project == "" {
		project = "all"
	}
	return &PlantNetProvider{
		apiKey:     settings.Provider.PlantNet.APIKey,
		endpoint:   strings.TrimSuffix(settings.Provider.PlantNet.Endpoint, "/"),
		project:    project,
		httpClient: &http.Client{Timeout: requestTimeout},
		debug:      settings.Debug,
	}
}

func (p *PlantNetProvider) Name() string { return "plantnet" }

func (p *PlantNetProvider) Configured() bool { return p.apiKey != "" }

// Identify submits the images as a multipart form and returns the top result.
func (p *PlantNetProvider) Identify(ctx context.Context, images [][]byte) (*Identification, error) {
	if !p.Configured() {
		return nil, errors.Newf("plantnet API key is not configured").
			Component("provider").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(images) == 0 {
		return nil, errors.ValidationError("no images to identify")
	}

	reqID := uuid.New().String()[:8]
	logger := getLogger().With("request_id", reqID, "provider", "plantnet")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, img := range images {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("image%d.jpg", i))
		if err != nil {
			return nil, errors.New(err).
				Component("provider").
				Category(errors.CategoryProvider).
				Context("operation", "build_multipart").
				Build()
		}
		if _, err := part.Write(img); err != nil {
			return nil, errors.New(err).
				Component("provider").
				Category(errors.CategoryProvider).
				Context("operation", "build_multipart").
				Build()
		}
		if err := writer.WriteField("organs", "auto"); err != nil {
			return nil, errors.New(err).
				Component("provider").
				Category(errors.CategoryProvider).
				Context("operation", "build_multipart").
				Build()
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryProvider).
			Context("operation", "build_multipart").
			Build()
	}

	fullURL := fmt.Sprintf("%s/%s?api-key=%s", p.endpoint, p.project, url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, &buf)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Info("Submitting identification request", "image_count", len(images), "project", p.project)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("provider", "plantnet").
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
			Context("provider", "plantnet").
			Build()
	}

	if resp.StatusCode == http.StatusNotFound {
		// Pl@ntNet answers 404 when no species matched.
		logger.Info("No species matched")
		return nil, ErrNoMatch
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Identification request failed",
			"status", resp.StatusCode,
			"body", truncate(string(body), 200))
		return nil, statusError("plantnet", resp.StatusCode)
	}

	ident, err := parsePlantNetResponse(body)
	if err != nil {
		logger.Info("No identification in response", "error", err)
		return nil, err
	}

	logger.Info("Identification received",
		"scientific_name", ident.ScientificName,
		"probability", ident.Probability)
	return ident, nil
}

func parsePlantNetResponse(body []byte) (*Identification, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryProvider).
			Context("operation", "parse_response").
			Build()
	}

	results, err := obj.GetObjectArray("results")
	if err != nil || len(results) == 0 {
		return nil, ErrNoMatch
	}

	top := results[0]
	ident := &Identification{}

	if name, err := top.GetString("species", "scientificNameWithoutAuthor"); err == nil {
		ident.ScientificName = name
	} else if name, err := top.GetString("species", "scientificName"); err == nil {
		ident.ScientificName = name
	}
	if ident.ScientificName == "" {
		return nil, ErrNoMatch
	}

	if score, err := top.GetFloat64("score"); err == nil {
		ident.Probability = score
	}
	if names, err := top.GetStringArray("species", "commonNames"); err == nil && len(names) > 0 {
		ident.CommonName = names[0]
	}

	return ident, nil
}
