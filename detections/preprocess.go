package detections

import (
	"bytes"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sys/cpu"
)

// Tensor is one preprocessed image in the NHWC layout the model expects:
// a single batch of InputHeight rows by InputWidth columns by RGB
// channels, with intensities scaled to [0,1]. Ephemeral: built per
// detection call, discarded after inference.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// useUnrolledRows selects the 4-pixel row kernel. The unrolled loop only
// pays off where the compiler has vector registers to keep the lanes in.
var useUnrolledRows = cpu.X86.HasAVX2 || cpu.X86.HasSSE41

// PrepareFile decodes the image at path and converts it to the model's
// input tensor.
func PrepareFile(path string) (*Tensor, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, stageError("preprocess", ErrImageDecode, err)
	}
	return prepare(img)
}

// PrepareBytes is PrepareFile for an in-memory encoded image.
func PrepareBytes(data []byte) (*Tensor, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, stageError("preprocess", ErrImageDecode, err)
	}
	return prepare(img)
}

func prepare(img image.Image) (*Tensor, error) {
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, stageError("preprocess", ErrShape,
			fmt.Errorf("decoded image has empty %dx%d bounds", bounds.Dx(), bounds.Dy()))
	}

	// Bilinear resize; imaging also coerces grayscale and alpha inputs
	// into NRGBA here.
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	if resized.Stride < InputWidth*4 {
		return nil, stageError("preprocess", ErrShape,
			fmt.Errorf("resized image has stride %d, want at least %d", resized.Stride, InputWidth*4))
	}

	data := make([]float32, InputWidth*InputHeight*InputChannels)
	fillNHWC(resized, data)

	return &Tensor{
		Data:  data,
		Shape: []int64{1, InputHeight, InputWidth, InputChannels},
	}, nil
}

// fillNHWC converts NRGBA rows into interleaved RGB float32, splitting the
// rows across workers.
func fillNHWC(img *image.NRGBA, dst []float32) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > InputHeight {
		numWorkers = InputHeight
	}
	rowsPerWorker := InputHeight / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = InputHeight
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride : y*img.Stride+InputWidth*4]
				out := dst[y*InputWidth*3 : (y+1)*InputWidth*3]
				if useUnrolledRows {
					fillRowUnrolled(out, src)
				} else {
					fillRow(out, src)
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}

func fillRow(dst []float32, src []byte) {
	for x := 0; x < InputWidth; x++ {
		dst[x*3+0] = float32(src[x*4+0]) / 255.0
		dst[x*3+1] = float32(src[x*4+1]) / 255.0
		dst[x*3+2] = float32(src[x*4+2]) / 255.0
	}
}

// fillRowUnrolled processes four pixels per iteration. InputWidth must be
// divisible by 4.
func fillRowUnrolled(dst []float32, src []byte) {
	for x := 0; x < InputWidth; x += 4 {
		s := src[x*4 : x*4+16]
		d := dst[x*3 : x*3+12]
		d[0] = float32(s[0]) / 255.0
		d[1] = float32(s[1]) / 255.0
		d[2] = float32(s[2]) / 255.0
		d[3] = float32(s[4]) / 255.0
		d[4] = float32(s[5]) / 255.0
		d[5] = float32(s[6]) / 255.0
		d[6] = float32(s[8]) / 255.0
		d[7] = float32(s[9]) / 255.0
		d[8] = float32(s[10]) / 255.0
		d[9] = float32(s[12]) / 255.0
		d[10] = float32(s[13]) / 255.0
		d[11] = float32(s[14]) / 255.0
	}
}
