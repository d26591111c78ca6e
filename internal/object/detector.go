// Package object implements the second analytics stage: a YOLO26 ONNX
// detector run against the letterboxed RGB frame extracted around a motion
// event's boundary.
package object

import (
	"fmt"
	"image"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// inputSize is the square input resolution YOLO26 was exported with.
const inputSize = 640

// Detection is a single classified object at or above the configured
// confidence threshold, with its bounding box unletterboxed back to the original
// frame's pixel coordinates and clamped to its bounds.
type Detection struct {
	ClassName  string
	Confidence float32

	// BoxX, BoxY is the top-left corner; BoxWidth, BoxHeight its size, all
	// in original-frame pixels.
	BoxX, BoxY, BoxWidth, BoxHeight float32
}

// Config tunes the detector.
type Config struct {
	ModelPath         string
	ConfidenceThresh  float32
	AllowedClasses    []string
	IntraOpNumThreads int
}

// Detector wraps an ONNX Runtime session running the YOLO26 graph. It is
// safe for concurrent Detect calls; the onnxruntime session itself serializes
// internally, but callers are still expected to own one Detector per camera
// since frame tensors are reused across calls for the session's lifetime.
type Detector struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	logits    *ort.Tensor[float32]
	predBoxes *ort.Tensor[float32]

	cfg Config
}

// New loads the ONNX model at cfg.ModelPath and builds a detection session.
// The ONNX Runtime environment (ort.InitializeEnvironment) must already be
// initialized before any Detector is constructed; this package does not
// initialize it.
func New(cfg Config) (*Detector, error) {
	if cfg.ConfidenceThresh <= 0 {
		cfg.ConfidenceThresh = 0.5
	}

	inputShape := ort.NewShape(1, 3, inputSize, inputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("object: allocate input tensor: %w", err)
	}

	// YOLO26 export used by the upstream pipeline: 300 candidate boxes,
	// 80 class logits each, plus a normalized cxcywh box per candidate.
	logitsShape := ort.NewShape(1, 300, 80)
	logits, err := ort.NewEmptyTensor[float32](logitsShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("object: allocate logits tensor: %w", err)
	}

	predBoxesShape := ort.NewShape(1, 300, 4)
	predBoxes, err := ort.NewEmptyTensor[float32](predBoxesShape)
	if err != nil {
		input.Destroy()
		logits.Destroy()
		return nil, fmt.Errorf("object: allocate pred_boxes tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		logits.Destroy()
		predBoxes.Destroy()
		return nil, fmt.Errorf("object: session options: %w", err)
	}
	defer options.Destroy()
	if cfg.IntraOpNumThreads > 0 {
		_ = options.SetIntraOpNumThreads(cfg.IntraOpNumThreads)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"logits", "pred_boxes"},
		[]ort.Value{input}, []ort.Value{logits, predBoxes}, options)
	if err != nil {
		input.Destroy()
		logits.Destroy()
		predBoxes.Destroy()
		return nil, fmt.Errorf("object: create session: %w", err)
	}

	return &Detector{
		session:   session,
		input:     input,
		logits:    logits,
		predBoxes: predBoxes,
		cfg:       cfg,
	}, nil
}

// Close releases the ONNX session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	if d.logits != nil {
		d.logits.Destroy()
	}
	if d.predBoxes != nil {
		d.predBoxes.Destroy()
	}
	return nil
}

// Detect runs inference on a single RGB frame (width*height*3 bytes,
// row-major, byte order R,G,B) and returns every detection at or above the
// configured confidence threshold, filtered to AllowedClasses if non-empty.
func (d *Detector) Detect(frame []byte, width, height int) ([]Detection, error) {
	if width == 0 || height == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lb := letterbox(frame, width, height, d.input.GetData())

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("object: run inference: %w", err)
	}

	return postprocessYOLO26(d.logits.GetData(), d.predBoxes.GetData(), d.cfg.ConfidenceThresh, d.cfg.AllowedClasses, lb, width, height), nil
}

// letterboxInfo records the scale and padding letterbox applied, needed to
// unletterbox a detected box back to the original frame's coordinates.
type letterboxInfo struct {
	scale      float64
	padX, padY int
}

// letterbox resizes an RGB frame to fit within inputSize x inputSize
// preserving aspect ratio, pads with gray (114,114,114), and writes the
// result directly into a CHW float32 tensor normalized to [0, 1].
func letterbox(frame []byte, width, height int, dst []float32) letterboxInfo {
	src := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			o := src.PixOffset(x, y)
			src.Pix[o] = frame[i]
			src.Pix[o+1] = frame[i+1]
			src.Pix[o+2] = frame[i+2]
			src.Pix[o+3] = 0xFF
		}
	}

	scale := math.Min(float64(inputSize)/float64(width), float64(inputSize)/float64(height))
	newW := int(math.Round(float64(width) * scale))
	newH := int(math.Round(float64(height) * scale))
	padX := (inputSize - newW) / 2
	padY := (inputSize - newH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	gray := image.NewUniform(grayFill)
	draw.Draw(canvas, canvas.Bounds(), gray, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, image.Rect(padX, padY, padX+newW, padY+newH), src, src.Bounds(), draw.Over, nil)

	planeSize := inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			o := canvas.PixOffset(x, y)
			idx := y*inputSize + x
			dst[idx] = float32(canvas.Pix[o]) / 255.0
			dst[planeSize+idx] = float32(canvas.Pix[o+1]) / 255.0
			dst[2*planeSize+idx] = float32(canvas.Pix[o+2]) / 255.0
		}
	}

	return letterboxInfo{scale: scale, padX: padX, padY: padY}
}

// unletterbox maps a normalized cxcywh box in the 640x640 letterboxed
// coordinate space back to the original frame's pixel coordinates, clamped
// to the frame's bounds.
func unletterbox(cx, cy, w, h float32, lb letterboxInfo, width, height int) (x, y, boxW, boxH float32) {
	px := float64(cx) * inputSize
	py := float64(cy) * inputSize
	pw := float64(w) * inputSize
	ph := float64(h) * inputSize

	x0 := (px - pw/2 - float64(lb.padX)) / lb.scale
	y0 := (py - ph/2 - float64(lb.padY)) / lb.scale
	x1 := (px + pw/2 - float64(lb.padX)) / lb.scale
	y1 := (py + ph/2 - float64(lb.padY)) / lb.scale

	x0 = math.Max(0, math.Min(x0, float64(width)))
	y0 = math.Max(0, math.Min(y0, float64(height)))
	x1 = math.Max(0, math.Min(x1, float64(width)))
	y1 = math.Max(0, math.Min(y1, float64(height)))

	return float32(x0), float32(y0), float32(x1 - x0), float32(y1 - y0)
}

var grayFill = rgbaColor{114, 114, 114, 255}

type rgbaColor struct{ R, G, B, A uint8 }

func (c rgbaColor) RGBA() (r, g, b, a uint32) {
	return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101, uint32(c.A) * 0x101
}

// postprocessYOLO26 applies sigmoid to each candidate's per-class logits,
// keeps the top class per candidate, filters by confidence threshold and the
// allow-list, and unletterboxes the matching pred_boxes entry back to the
// original frame's pixel coordinates.
func postprocessYOLO26(logits, predBoxes []float32, confidenceThreshold float32, allowedClasses []string, lb letterboxInfo, width, height int) []Detection {
	const numDetections = 300
	const numClasses = 80
	const numBoxCoords = 4

	var detections []Detection
	for i := 0; i < numDetections; i++ {
		maxScore := float32(0)
		maxClass := 0
		for j := 0; j < numClasses; j++ {
			logit := logits[i*numClasses+j]
			score := float32(1 / (1 + math.Exp(-float64(logit))))
			if score > maxScore {
				maxScore = score
				maxClass = j
			}
		}

		if maxScore < confidenceThreshold {
			continue
		}

		className := fmt.Sprintf("class_%d", maxClass)
		if maxClass < len(cocoClasses) {
			className = cocoClasses[maxClass]
		}

		if len(allowedClasses) > 0 && !containsClass(allowedClasses, className) {
			continue
		}

		cx := predBoxes[i*numBoxCoords]
		cy := predBoxes[i*numBoxCoords+1]
		bw := predBoxes[i*numBoxCoords+2]
		bh := predBoxes[i*numBoxCoords+3]
		x, y, boxW, boxH := unletterbox(cx, cy, bw, bh, lb, width, height)

		detections = append(detections, Detection{
			ClassName:  className,
			Confidence: maxScore,
			BoxX:       x,
			BoxY:       y,
			BoxWidth:   boxW,
			BoxHeight:  boxH,
		})
	}
	return detections
}

func containsClass(classes []string, name string) bool {
	for _, c := range classes {
		if c == name {
			return true
		}
	}
	return false
}
