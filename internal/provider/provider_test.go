package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/antonholmquist/jason"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
)

const (
	plantIDEndpoint  = "https://plant.id/api/v3/identification"
	plantNetEndpoint = "https://my-api.plantnet.org/v2/identify"
)

func testSettings(providerName string) *conf.Settings {
	settings := &conf.Settings{}
	settings.Provider.Name = providerName
	settings.Provider.PlantID.APIKey = "test-key"
	settings.Provider.PlantID.Endpoint = plantIDEndpoint
	settings.Provider.PlantNet.APIKey = "test-key"
	settings.Provider.PlantNet.Endpoint = plantNetEndpoint
	return settings
}

func TestNew_SelectsProvider(t *testing.T) {
	p, err := New(testSettings("plantid"))
	require.NoError(t, err)
	assert.Equal(t, "plantid", p.Name())

	p, err = New(testSettings("plantnet"))
	require.NoError(t, err)
	assert.Equal(t, "plantnet", p.Name())

	p, err = New(testSettings("none"))
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = New(testSettings("florafinder"))
	assert.Error(t, err)
}

func TestPlantID_NestedLayout(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	response := `{
		"result": {
			"classification": {
				"suggestions": [
					{
						"name": "Azadirachta indica",
						"probability": 0.93,
						"details": {
							"common_names": ["Neem", "Indian lilac"],
							"description": {"value": "Neem is a tree used in traditional medicine."}
						}
					},
					{"name": "Melia azedarach", "probability": 0.04}
				]
			}
		}
	}`
	httpmock.RegisterResponder("POST", plantIDEndpoint,
		httpmock.NewStringResponder(200, response))

	ident, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	require.NoError(t, err)
	assert.Equal(t, "Azadirachta indica", ident.ScientificName)
	assert.Equal(t, "Neem", ident.CommonName)
	assert.InDelta(t, 0.93, ident.Probability, 1e-9)
	assert.Contains(t, ident.Description, "traditional medicine")
}

func TestPlantID_FlatLayout(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	response := `{
		"suggestions": [
			{
				"plant_name": "Ocimum tenuiflorum",
				"probability": 0.88,
				"plant_details": {
					"common_names": ["Holy basil", "Tulsi"],
					"wiki_description": {"value": "Holy basil is widely used in herbal medicine."}
				}
			}
		]
	}`
	httpmock.RegisterResponder("POST", plantIDEndpoint,
		httpmock.NewStringResponder(200, response))

	ident, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	require.NoError(t, err)
	assert.Equal(t, "Ocimum tenuiflorum", ident.ScientificName)
	assert.Equal(t, "Holy basil", ident.CommonName)
	assert.Contains(t, ident.Description, "herbal medicine")
}

func TestPlantID_SendsBase64Images(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	var gotImages []string
	httpmock.RegisterResponder("POST", plantIDEndpoint,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-key", req.Header.Get("Api-Key"))
			obj, err := jason.NewObjectFromReader(req.Body)
			require.NoError(t, err)
			gotImages, err = obj.GetStringArray("images")
			require.NoError(t, err)
			return httpmock.NewStringResponse(200, `{"suggestions":[{"plant_name":"Mentha"}]}`), nil
		})

	raw := []byte{0xff, 0xd8, 0xff, 0xe0}
	_, err := p.Identify(context.Background(), [][]byte{raw})
	require.NoError(t, err)
	require.Len(t, gotImages, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), gotImages[0])
}

func TestPlantID_NoSuggestions(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", plantIDEndpoint,
		httpmock.NewStringResponder(200, `{"suggestions": []}`))

	_, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestPlantID_ServerError(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", plantIDEndpoint,
		httpmock.NewStringResponder(500, `{"error":"internal"}`))

	_, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProvider))
}

func TestPlantID_NotConfigured(t *testing.T) {
	settings := testSettings("plantid")
	settings.Provider.PlantID.APIKey = ""
	p := NewPlantIDProvider(settings)

	assert.False(t, p.Configured())
	_, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPlantID_NoImages(t *testing.T) {
	p := NewPlantIDProvider(testSettings("plantid"))

	_, err := p.Identify(context.Background(), nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestPlantNet_TopResult(t *testing.T) {
	p := NewPlantNetProvider(testSettings("plantnet"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	response := `{
		"results": [
			{
				"score": 0.71,
				"species": {
					"scientificNameWithoutAuthor": "Curcuma longa",
					"commonNames": ["Turmeric"]
				}
			}
		]
	}`
	httpmock.RegisterResponder("POST", `=~^`+plantNetEndpoint+`/all\b`,
		httpmock.NewStringResponder(200, response))

	ident, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	require.NoError(t, err)
	assert.Equal(t, "Curcuma longa", ident.ScientificName)
	assert.Equal(t, "Turmeric", ident.CommonName)
	assert.InDelta(t, 0.71, ident.Probability, 1e-9)
}

func TestPlantNet_NotFoundMeansNoMatch(t *testing.T) {
	p := NewPlantNetProvider(testSettings("plantnet"))
	httpmock.ActivateNonDefault(p.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", `=~.*`,
		httpmock.NewStringResponder(404, `{"statusCode":404,"message":"Species not found"}`))

	_, err := p.Identify(context.Background(), [][]byte{[]byte("jpegdata")})
	assert.ErrorIs(t, err, ErrNoMatch)
}
