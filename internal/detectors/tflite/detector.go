// Package tflite adapts a TensorFlow Lite SSD object-detection model to the
// videocore Detector interface.
package tflite

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

const (
	defaultMaxResults = 20
	defaultMinScore   = 0.5
)

// Config locates the model and tunes inference.
type Config struct {
	ModelPath  string
	LabelPath  string
	MaxResults int
	MinScore   float64
	Threads    int
	UseXNNPACK bool
}

// Factory creates one detector handle per session over a shared label set.
type Factory struct {
	cfg    Config
	labels []string
	logger *slog.Logger
}

// NewFactory loads the label file and validates the config. Model loading
// itself is deferred to each detector's Initialize.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaultMinScore
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.ModelPath == "" {
		return nil, errors.Newf("model path is not configured").
			Component("tflite").
			Category(errors.CategoryConfig).
			Build()
	}

	f, err := os.Open(cfg.LabelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("tflite").
			Category(errors.CategoryFileIO).
			Context("operation", "open_labels").
			Context("path", cfg.LabelPath).
			Build()
	}
	defer f.Close()

	labels, err := parseLabels(f)
	if err != nil {
		return nil, err
	}

	logger := logging.ForService("tflite")
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{cfg: cfg, labels: labels, logger: logger}, nil
}

// NewDetector returns an uninitialized detector handle.
func (f *Factory) NewDetector() (videocore.Detector, error) {
	return &Detector{cfg: f.cfg, labels: f.labels, logger: f.logger}, nil
}

// Detector runs one SSD interpreter. Safe for the session's sequential tick
// loop; a mutex guards against accidental concurrent use.
type Detector struct {
	cfg    Config
	labels []string
	logger *slog.Logger

	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	options     *tflite.InterpreterOptions
	inputWidth  int
	inputHeight int
}

// Initialize loads the model file and allocates the interpreter.
func (d *Detector) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	modelData, err := os.ReadFile(d.cfg.ModelPath)
	if err != nil {
		return errors.New(err).
			Component("tflite").
			Category(errors.CategoryModelLoad).
			Context("model_path", d.cfg.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return errors.Newf("cannot load TensorFlow Lite model").
			Component("tflite").
			Category(errors.CategoryModelInit).
			Context("model_path", d.cfg.ModelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	if d.cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, d.cfg.Threads-1))})
		if delegate == nil {
			d.logger.Warn("failed to create XNNPACK delegate, using default CPU")
			options.SetNumThread(d.cfg.Threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(d.cfg.Threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		d.logger.Error("tflite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		options.Delete()
		return errors.Newf("cannot create interpreter").
			Component("tflite").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		options.Delete()
		return errors.Newf("tensor allocation failed: %v", status).
			Component("tflite").
			Category(errors.CategoryModelInit).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() < 3 {
		interpreter.Delete()
		model.Delete()
		options.Delete()
		return errors.Newf("model has unexpected input shape").
			Component("tflite").
			Category(errors.CategoryModelInit).
			Build()
	}

	d.model = model
	d.options = options
	d.interpreter = interpreter
	d.inputHeight = input.Dim(1)
	d.inputWidth = input.Dim(2)

	d.logger.Info("model loaded",
		"path", d.cfg.ModelPath,
		"input_width", d.inputWidth,
		"input_height", d.inputHeight,
		"labels", len(d.labels),
		"load_time", time.Since(start))
	return nil
}

// Detect runs one inference on a captured frame.
func (d *Detector) Detect(ctx context.Context, frame *videocore.Frame) ([]videocore.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interpreter == nil {
		return nil, errors.Newf("detector is not initialized").
			Component("tflite").
			Category(errors.CategoryState).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := d.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("tflite").
			Category(errors.CategoryInference).
			Build()
	}
	resizeRGB(frame.Pixels, frame.Width, frame.Height, input.UInt8s(), d.inputWidth, d.inputHeight)

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("tflite").
			Category(errors.CategoryInference).
			Context("device_id", frame.DeviceID).
			Build()
	}

	boxes := d.interpreter.GetOutputTensor(0).Float32s()
	classes := d.interpreter.GetOutputTensor(1).Float32s()
	scores := d.interpreter.GetOutputTensor(2).Float32s()
	count := int(d.interpreter.GetOutputTensor(3).Float32s()[0])

	return mapOutputs(boxes, classes, scores, count, d.labels, outputParams{
		frameWidth:  float64(frame.Width),
		frameHeight: float64(frame.Height),
		minScore:    d.cfg.MinScore,
		maxResults:  d.cfg.MaxResults,
	}), nil
}

// Close releases the interpreter and model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interpreter != nil {
		d.interpreter.Delete()
		d.interpreter = nil
	}
	if d.model != nil {
		d.model.Delete()
		d.model = nil
	}
	if d.options != nil {
		d.options.Delete()
		d.options = nil
	}
	return nil
}

// parseLabels reads one label per line, skipping blanks.
func parseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("tflite").
			Category(errors.CategoryFileIO).
			Context("operation", "parse_labels").
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file is empty").
			Component("tflite").
			Category(errors.CategoryValidation).
			Build()
	}
	return labels, nil
}

// resizeRGB nearest-neighbor scales RGB24 pixels into the model input.
func resizeRGB(src []byte, srcW, srcH int, dst []byte, dstW, dstH int) {
	if srcW <= 0 || srcH <= 0 || len(src) < srcW*srcH*3 || len(dst) < dstW*dstH*3 {
		return
	}
	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			si := (sy*srcW + sx) * 3
			di := (y*dstW + x) * 3
			dst[di] = src[si]
			dst[di+1] = src[si+1]
			dst[di+2] = src[si+2]
		}
	}
}

type outputParams struct {
	frameWidth  float64
	frameHeight float64
	minScore    float64
	maxResults  int
}

// mapOutputs converts SSD tensor outputs (normalized ymin,xmin,ymax,xmax)
// into pixel-space detections, filtered and capped.
func mapOutputs(boxes, classes, scores []float32, count int, labels []string, p outputParams) []videocore.Detection {
	detections := make([]videocore.Detection, 0, count)
	for i := 0; i < count && i*4+3 < len(boxes); i++ {
		if i >= len(scores) || i >= len(classes) {
			break
		}
		score := float64(scores[i])
		if score < p.minScore {
			continue
		}
		classIdx := int(classes[i])
		if classIdx < 0 || classIdx >= len(labels) {
			continue
		}

		yMin := clampUnit(float64(boxes[i*4]))
		xMin := clampUnit(float64(boxes[i*4+1]))
		yMax := clampUnit(float64(boxes[i*4+2]))
		xMax := clampUnit(float64(boxes[i*4+3]))

		detections = append(detections, videocore.Detection{
			Class: labels[classIdx],
			Score: score,
			Box: videocore.BoundingBox{
				X:      xMin * p.frameWidth,
				Y:      yMin * p.frameHeight,
				Width:  (xMax - xMin) * p.frameWidth,
				Height: (yMax - yMin) * p.frameHeight,
			},
		})
		if len(detections) >= p.maxResults {
			break
		}
	}
	return detections
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
