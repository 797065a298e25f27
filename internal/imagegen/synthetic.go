package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"time"
)

// Generator is the contract implemented by generation backends. Generate is
// synchronous and may run for seconds to minutes; progress is reported via
// the callback as (step, total).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, progress func(step, total int)) (*Result, error)
}

// Synthetic renders deterministic placeholder mockups locally: a seeded
// gradient backdrop with a framed sign panel, tinted by the active adapter
// set. It keeps the full request/queue/persistence path exercisable on
// machines without the diffusion backend.
type Synthetic struct {
	// StepDelay slows each reported step, approximating real sampling time.
	StepDelay time.Duration
}

func (s *Synthetic) Generate(ctx context.Context, req GenerateRequest, progress func(step, total int)) (*Result, error) {
	start := time.Now()

	seed := req.Seed
	if seed == -1 {
		seed = rand.Int63n(1 << 32)
	}
	rng := rand.New(rand.NewSource(seed))

	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	s.fillBackdrop(img, rng, req)
	s.drawPanel(img, rng, req)

	for step := 1; step <= req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.StepDelay > 0 {
			time.Sleep(s.StepDelay)
		}
		if progress != nil {
			progress(step, req.Steps)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return &Result{
		PNG:              buf.Bytes(),
		Seed:             seed,
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		Width:            req.Width,
		Height:           req.Height,
		Steps:            req.Steps,
		GuidanceScale:    req.GuidanceScale,
		Adapters:         req.Adapters,
		AdapterWeights:   req.AdapterWeights,
		GenerationTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// fillBackdrop paints a vertical gradient between two seed-derived colors.
func (s *Synthetic) fillBackdrop(img *image.RGBA, rng *rand.Rand, req GenerateRequest) {
	top := color.RGBA{R: uint8(40 + rng.Intn(120)), G: uint8(40 + rng.Intn(120)), B: uint8(60 + rng.Intn(140)), A: 255}
	bottom := color.RGBA{R: uint8(120 + rng.Intn(100)), G: uint8(120 + rng.Intn(100)), B: uint8(100 + rng.Intn(100)), A: 255}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		t := float64(y-bounds.Min.Y) / float64(bounds.Dy())
		row := color.RGBA{
			R: lerp(top.R, bottom.R, t),
			G: lerp(top.G, bottom.G, t),
			B: lerp(top.B, bottom.B, t),
			A: 255,
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetRGBA(x, y, row)
		}
	}
}

// drawPanel composites the centered sign panel with a border, tinted by the
// adapter names so different compositions are visually distinguishable.
func (s *Synthetic) drawPanel(img *image.RGBA, rng *rand.Rand, req GenerateRequest) {
	bounds := img.Bounds()
	panelW := bounds.Dx() * 6 / 10
	panelH := bounds.Dy() * 3 / 10
	x0 := bounds.Min.X + (bounds.Dx()-panelW)/2
	y0 := bounds.Min.Y + (bounds.Dy()-panelH)/2
	panel := image.Rect(x0, y0, x0+panelW, y0+panelH)

	tint := adapterTint(req.Adapters)
	face := color.RGBA{
		R: uint8(180 + int(tint[0])%60),
		G: uint8(180 + int(tint[1])%60),
		B: uint8(180 + int(tint[2])%60),
		A: 255,
	}
	border := color.RGBA{R: 30, G: 30, B: 34, A: 255}

	frame := panel.Inset(-8)
	draw.Draw(img, frame.Intersect(bounds), &image.Uniform{C: border}, image.Point{}, draw.Src)
	draw.Draw(img, panel, &image.Uniform{C: face}, image.Point{}, draw.Src)

	// Speckle the face so two seeds never produce identical panels.
	for i := 0; i < panelW*panelH/64; i++ {
		px := x0 + rng.Intn(panelW)
		py := y0 + rng.Intn(panelH)
		img.SetRGBA(px, py, color.RGBA{R: face.R - 12, G: face.G - 12, B: face.B - 12, A: 255})
	}
}

func adapterTint(adapters []string) [3]byte {
	h := fnv.New32a()
	for _, a := range adapters {
		h.Write([]byte(a))
	}
	sum := h.Sum32()
	return [3]byte{byte(sum), byte(sum >> 8), byte(sum >> 16)}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}
