package analyzer

import (
	"image"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// TileMetrics summarizes the pixel content of a tile
type TileMetrics struct {
	InkRatio      float64 `json:"ink_ratio"`
	MeanLuminance float64 `json:"mean_luminance"`
	RowStdDev     float64 `json:"row_std_dev"`
}

// TileInspector decides whether a tile carries any drawing content
type TileInspector interface {
	Inspect(img image.Image) TileMetrics
	IsBlank(m TileMetrics) bool
}

// tileInspector computes ink coverage in parallel horizontal strips
type tileInspector struct {
	inkLuminance float64
	minInkRatio  float64
	rowPool      sync.Pool
}

// NewTileInspector creates an inspector. Pixels darker than inkLuminance
// (0..1) count as ink; tiles with less than minInkRatio ink are blank.
func NewTileInspector(inkLuminance, minInkRatio float64) TileInspector {
	if inkLuminance <= 0 || inkLuminance >= 1 {
		inkLuminance = 0.6
	}
	return &tileInspector{
		inkLuminance: inkLuminance,
		minInkRatio:  minInkRatio,
		rowPool: sync.Pool{
			New: func() interface{} {
				buf := make([]float64, 0, 2048)
				return &buf
			},
		},
	}
}

// Inspect measures ink ratio and luminance spread of the image
func (ti *tileInspector) Inspect(img image.Image) TileMetrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return TileMetrics{}
	}

	numWorkers := min(runtime.NumCPU(), height)
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	type stripResult struct {
		ink      int
		rowMeans []float64
		startY   int
	}

	results := make(chan stripResult, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := min(startY+rowsPerWorker, bounds.Max.Y)
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()

			ink := 0
			means := make([]float64, 0, endY-startY)
			for y := startY; y < endY; y++ {
				var rowSum float64
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
					if lum < ti.inkLuminance {
						ink++
					}
					rowSum += lum
				}
				means = append(means, rowSum/float64(width))
			}
			results <- stripResult{ink: ink, rowMeans: means, startY: startY}
		}(startY, endY)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	buf := ti.rowPool.Get().(*[]float64)
	if cap(*buf) < height {
		*buf = make([]float64, 0, height)
	}
	rows := (*buf)[:height]
	defer ti.rowPool.Put(buf)

	totalInk := 0
	for res := range results {
		totalInk += res.ink
		copy(rows[res.startY-bounds.Min.Y:], res.rowMeans)
	}

	mean, std := stat.MeanStdDev(rows, nil)
	if height == 1 {
		std = 0
	}
	return TileMetrics{
		InkRatio:      float64(totalInk) / float64(width*height),
		MeanLuminance: mean,
		RowStdDev:     std,
	}
}

// IsBlank reports whether the tile has too little ink to be worth recognizing
func (ti *tileInspector) IsBlank(m TileMetrics) bool {
	return m.InkRatio < ti.minInkRatio
}
