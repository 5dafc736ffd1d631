// Package similarity provides the local fallback identifier: a TensorFlow
// Lite feature extractor and a cosine-similarity matcher over the stored
// herb catalog.
package similarity

import (
	"bytes"
	"image"
	"log/slog"
	"os"
	"runtime"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/tphakala/go-tflite"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
)

// Model input geometry. The feature model takes a square RGB image scaled
// to [-1, 1].
const (
	inputSize     = 224
	inputChannels = 3
)

// Package-level logger for the similarity service
var (
	simLogger   *slog.Logger
	simLevelVar = new(slog.LevelVar)
	loggerOnce  sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		simLevelVar.Set(slog.LevelInfo)

		var err error
		simLogger, _, err = logging.NewFileLogger("logs/similarity.log", "similarity", simLevelVar)
		if err != nil {
			logging.Error("Failed to initialize similarity file logger", "error", err)
			simLogger = logging.NoopLogger("similarity", simLevelVar)
		}
	})
	return simLogger
}

// Extractor computes feature embeddings from herb photos with a TensorFlow
// Lite model. The interpreter is not safe for concurrent invocation, so
// Extract serializes access.
type Extractor struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
	mu          sync.Mutex
}

// NewExtractor loads the feature model from the configured path.
func NewExtractor(settings *conf.Settings) (*Extractor, error) {
	modelPath := settings.Similarity.ModelPath

	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.New(err).
			Component("similarity").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Build()
	}

	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Newf("cannot load feature model from %s", modelPath).
			Component("similarity").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create model interpreter").
			Component("similarity").
			Category(errors.CategoryModelInit).
			Build()
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed").
			Component("similarity").
			Category(errors.CategoryModelInit).
			Build()
	}

	getLogger().Info("Feature model loaded", "model_path", modelPath)

	return &Extractor{model: model, interpreter: interpreter}, nil
}

// Close releases the interpreter and model.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
}

// Extract decodes an image and returns its L2-normalized feature embedding.
func (e *Extractor) Extract(imageData []byte) ([]float32, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, errors.New(err).
			Component("similarity").
			Category(errors.CategoryImageDecode).
			Build()
	}

	input := preprocess(img)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return nil, errors.Newf("extractor is closed").
			Component("similarity").
			Category(errors.CategoryModelInference).
			Build()
	}

	copy(e.interpreter.GetInputTensor(0).Float32s(), input)

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("model invocation failed").
			Component("similarity").
			Category(errors.CategoryModelInference).
			Context("image_format", format).
			Build()
	}

	output := e.interpreter.GetOutputTensor(0).Float32s()
	embedding := make([]float32, len(output))
	copy(embedding, output)
	Normalize(embedding)

	return embedding, nil
}

// preprocess resizes the image to the model geometry and scales RGB values
// to [-1, 1] in row-major RGB order.
func preprocess(img image.Image) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	input := make([]float32, inputSize*inputSize*inputChannels)
	idx := 0
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			input[idx] = float32(r>>8)/127.5 - 1.0
			input[idx+1] = float32(g>>8)/127.5 - 1.0
			input[idx+2] = float32(b>>8)/127.5 - 1.0
			idx += 3
		}
	}
	return input
}
