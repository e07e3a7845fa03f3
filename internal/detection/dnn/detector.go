package dnn

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/detection"
)

// Detector wraps one loaded network. A cv::dnn::Net is not safe for
// concurrent Forward calls, so Detect serializes on mu.
type Detector struct {
	mu        sync.Mutex
	net       gocv.Net
	labels    []string
	inputSize int
	minScore  float64
}

// Open loads the model described by cfg. The weights path is required; the
// network description path is optional for formats that embed it (ONNX).
func Open(cfg config.Detector) (*Detector, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: no model path configured", detection.ErrModelUnavailable)
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelUnavailable, err)
	}

	labels, err := detection.LoadLabels(cfg.LabelsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelUnavailable, err)
	}

	net := gocv.ReadNet(cfg.Model, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to read %s", detection.ErrModelUnavailable, cfg.Model)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %w", detection.ErrModelUnavailable, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %w", detection.ErrModelUnavailable, err)
	}

	size := cfg.InputSize
	if size <= 0 {
		size = 640
	}
	return &Detector{
		net:       net,
		labels:    labels,
		inputSize: size,
		minScore:  cfg.ScoreThreshold,
	}, nil
}

// NewProposer opens the model and wraps it with class filtering and NMS.
func NewProposer(cfg config.Detector) (*detection.DetectorProposer, *Detector, error) {
	det, err := Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := detection.NewDetectorProposer(det, detection.DetectorOptions{
		Classes:        cfg.Classes,
		ScoreThreshold: cfg.ScoreThreshold,
		NMSThreshold:   cfg.NMSThreshold,
	})
	return p, det, nil
}

// Detect runs one forward pass and decodes the output tensor.
func (d *Detector) Detect(img image.Image) ([]detection.Box, error) {
	bgr, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	blob := gocv.BlobFromImage(bgr, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detector output: %w", err)
	}

	return detection.DecodeYOLO(detection.YOLOOutput{
		Data: data,
		Dims: out.Size(),
	}, detection.DecodeOptions{
		Labels:         d.labels,
		InputSize:      d.inputSize,
		ImageBounds:    img.Bounds(),
		ScoreThreshold: d.minScore,
	})
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// imageToMat converts img to a BGR Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, nrgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
