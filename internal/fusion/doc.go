// Package fusion implements distribution-aware fusion of co-registered image
// stacks. Instead of collapsing each pixel's cross-frame samples to a mean or
// median up front, the engine accumulates per-pixel statistical moments in a
// single pass (Welford's algorithm), classifies each pixel's behaviour from
// those moments, scores its reliability, and only then combines the
// accumulated state into a final value under a selectable fusion strategy.
//
// The pipeline has two phases. During accumulation every frame is folded into
// per-pixel PixelDistribution state; during finalization the classifier,
// confidence scorer and fusion strategy run once per pixel to produce the
// fused-value and confidence matrices. Execution backends (host worker pool,
// GPU compute in the device subpackage) share the same numerical contract and
// must agree within floating-point tolerance for a given frame order.
package fusion
