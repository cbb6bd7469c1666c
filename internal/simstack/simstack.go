// Package simstack generates synthetic image stacks with known per-pixel
// temporal statistics. The generators drive end-to-end runs and demos when
// no real exposure data is on hand.
package simstack

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// Gaussian builds a stack where every pixel draws from N(mean, sigma²)
// independently per frame.
func Gaussian(frames, width, height int, mean, sigma float64, seed uint64) *fusion.ImageStack {
	dist := distuv.Normal{Mu: mean, Sigma: sigma, Src: rand.NewSource(seed)}
	return fill(frames, width, height, func(f, i int) float32 {
		return float32(dist.Rand())
	})
}

// Poisson builds a shot-noise stack: every pixel draws from Poisson(lambda)
// per frame, the photon-limited regime.
func Poisson(frames, width, height int, lambda float64, seed uint64) *fusion.ImageStack {
	dist := distuv.Poisson{Lambda: lambda, Src: rand.NewSource(seed)}
	return fill(frames, width, height, func(f, i int) float32 {
		return float32(dist.Rand())
	})
}

// Bimodal builds a stack where each sample comes from one of two Gaussian
// modes with equal probability, mimicking a star drifting across the pixel
// boundary between exposures.
func Bimodal(frames, width, height int, loMean, hiMean, sigma float64, seed uint64) *fusion.ImageStack {
	src := rand.NewSource(seed)
	lo := distuv.Normal{Mu: loMean, Sigma: sigma, Src: src}
	hi := distuv.Normal{Mu: hiMean, Sigma: sigma, Src: src}
	coin := rand.New(src)
	return fill(frames, width, height, func(f, i int) float32 {
		if coin.Float64() < 0.5 {
			return float32(lo.Rand())
		}
		return float32(hi.Rand())
	})
}

// Constant builds a stack where every pixel holds the same value in every
// frame: the degenerate saturated/dead-pixel case.
func Constant(frames, width, height int, value float64) *fusion.ImageStack {
	v := float32(value)
	return fill(frames, width, height, func(f, i int) float32 {
		return v
	})
}

// Starfield builds a Gaussian sky with a grid of Gaussian point sources on
// top, plus per-frame seeing metadata so lucky-imaging selection has
// something to work with. Seeing values draw from a uniform range and the
// source amplitude scales inversely with the frame's seeing.
func Starfield(frames, width, height int, sky, skySigma float64, seed uint64) *fusion.ImageStack {
	src := rand.NewSource(seed)
	noise := distuv.Normal{Mu: sky, Sigma: skySigma, Src: src}
	seeing := distuv.Uniform{Min: 0.8, Max: 3.5, Src: src}

	stack := &fusion.ImageStack{
		Frames:   make([]*fusion.Frame, frames),
		Metadata: make([]fusion.FrameMetadata, frames),
	}
	base := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)

	for f := 0; f < frames; f++ {
		fwhm := seeing.Rand()
		frame := fusion.NewFrame(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := noise.Rand()
				v += sourceFlux(x, y, width, height, fwhm)
				frame.Set(x, y, float32(v))
			}
		}
		stack.Frames[f] = frame
		stack.Metadata[f] = fusion.FrameMetadata{
			SeeingFWHM:    float32(fwhm),
			Background:    float32(sky),
			NoiseEstimate: float32(skySigma),
			QualityWeight: float32(1.0 / fwhm),
			Timestamp:     base.Add(time.Duration(f) * 30 * time.Second),
		}
	}
	return stack
}

// sourceFlux evaluates a grid of circular Gaussian sources at (x, y). Source
// spacing is a quarter of the image, amplitude 500 at perfect seeing.
func sourceFlux(x, y, width, height int, fwhm float64) float64 {
	spacingX := width / 4
	spacingY := height / 4
	if spacingX == 0 || spacingY == 0 {
		return 0
	}

	cx := (x/spacingX)*spacingX + spacingX/2
	cy := (y/spacingY)*spacingY + spacingY/2
	dx := float64(x - cx)
	dy := float64(y - cy)

	// FWHM to Gaussian sigma
	sigma := fwhm / 2.3548
	amp := 500.0 / fwhm
	return amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
}

func fill(frames, width, height int, sample func(frame, idx int) float32) *fusion.ImageStack {
	stack := &fusion.ImageStack{Frames: make([]*fusion.Frame, frames)}
	for f := 0; f < frames; f++ {
		frame := fusion.NewFrame(width, height)
		for i := range frame.Pixels {
			frame.Pixels[i] = sample(f, i)
		}
		stack.Frames[f] = frame
	}
	return stack
}
