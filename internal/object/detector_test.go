package object

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sigmoidLogit(p float64) float32 {
	return float32(math.Log(p / (1 - p)))
}

func centeredBox(predBoxes []float32, index int, cx, cy, w, h float32) {
	predBoxes[index*4] = cx
	predBoxes[index*4+1] = cy
	predBoxes[index*4+2] = w
	predBoxes[index*4+3] = h
}

func TestPostprocessYOLO26_FiltersByConfidence(t *testing.T) {
	logits := make([]float32, 300*80)
	logits[0*80+0] = sigmoidLogit(0.9) // person, high confidence
	logits[1*80+2] = sigmoidLogit(0.1) // car, low confidence
	predBoxes := make([]float32, 300*4)
	centeredBox(predBoxes, 0, 0.5, 0.5, 0.2, 0.2)

	lb := letterboxInfo{scale: 1, padX: 0, padY: 0}
	// Unset logits are 0, i.e. a sigmoid score of exactly 0.5, so the
	// threshold sits above that to leave only the explicit candidates.
	detections := postprocessYOLO26(logits, predBoxes, 0.6, nil, lb, inputSize, inputSize)

	assert.Len(t, detections, 1)
	assert.Equal(t, "person", detections[0].ClassName)
}

func TestPostprocessYOLO26_FiltersByAllowList(t *testing.T) {
	logits := make([]float32, 300*80)
	logits[0*80+0] = sigmoidLogit(0.9) // person
	logits[1*80+2] = sigmoidLogit(0.9) // car
	predBoxes := make([]float32, 300*4)
	centeredBox(predBoxes, 0, 0.5, 0.5, 0.2, 0.2)
	centeredBox(predBoxes, 1, 0.5, 0.5, 0.2, 0.2)

	lb := letterboxInfo{scale: 1, padX: 0, padY: 0}
	detections := postprocessYOLO26(logits, predBoxes, 0.5, []string{"car"}, lb, inputSize, inputSize)

	assert.Len(t, detections, 1)
	assert.Equal(t, "car", detections[0].ClassName)
}

func TestPostprocessYOLO26_UnletterboxesBoxToOriginalFrame(t *testing.T) {
	logits := make([]float32, 300*80)
	logits[0*80+0] = sigmoidLogit(0.9)
	predBoxes := make([]float32, 300*4)
	// A box dead center of the 640x640 letterboxed canvas, half its size.
	centeredBox(predBoxes, 0, 0.5, 0.5, 0.5, 0.5)

	// Original frame is 640x320; letterbox fits it into 640x640 at scale 1.0
	// with padY=160 (bars above and below), as letterbox itself computes.
	lb := letterboxInfo{scale: 1.0, padX: 0, padY: 160}
	width, height := 640, 320
	// Unset logits score exactly 0.5, so the threshold sits above that.
	detections := postprocessYOLO26(logits, predBoxes, 0.6, nil, lb, width, height)

	assert.Len(t, detections, 1)
	det := detections[0]
	assert.InDelta(t, 160, det.BoxX, 1)
	assert.InDelta(t, 0, det.BoxY, 1)
	assert.LessOrEqual(t, det.BoxX+det.BoxWidth, float32(width)+0.01)
	assert.LessOrEqual(t, det.BoxY+det.BoxHeight, float32(height)+0.01)
}

func TestLetterbox_FillsUnusedBordersWithGray(t *testing.T) {
	width, height := 640, 320 // wider than tall, pads top/bottom
	frame := make([]byte, width*height*3)
	for i := range frame {
		frame[i] = 200
	}

	dst := make([]float32, 3*inputSize*inputSize)
	letterbox(frame, width, height, dst)

	planeSize := inputSize * inputSize
	cornerIdx := 0 // top-left corner, within the padded border
	assert.InDelta(t, 114.0/255.0, dst[cornerIdx], 0.01)
	assert.InDelta(t, 114.0/255.0, dst[planeSize+cornerIdx], 0.01)
	assert.InDelta(t, 114.0/255.0, dst[2*planeSize+cornerIdx], 0.01)
}
