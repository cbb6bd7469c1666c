package device

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

//go:embed shaders/fusion.wgsl
var fusionShaderWGSL string

const (
	workgroupSize = 64

	// Bytes per pixel in the state buffer: 7 moments plus a pad float, and
	// in the result buffer: fused, confidence, variance, class.
	stateStride  = 32
	resultStride = 16
	rangeStride  = 8

	paramsSize = 16

	submitTimeout = 10 * time.Second
	pollInterval  = 200 * time.Microsecond
)

// Backend runs accumulation and finalization as wgpu compute dispatches. It
// implements fusion.Backend for the maximum-likelihood strategies; lucky and
// confidence-weighted fusion need per-frame values at finalization and stay
// on the host path.
//
// Pipelines are built once per Backend; Begin sizes the per-stack buffers and
// Close releases them. The Context stays with the caller and outlives the
// backend.
type Backend struct {
	ctx *Context

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	resetPipe  hal.ComputePipeline
	accumPipe  hal.ComputePipeline
	finalPipe  hal.ComputePipeline
	minmaxPipe hal.ComputePipeline

	width      int
	height     int
	pixelCount int

	paramsBuf  hal.Buffer
	frameBuf   hal.Buffer
	stateBuf   hal.Buffer
	resultBuf  hal.Buffer
	rangeBuf   hal.Buffer
	stagingBuf hal.Buffer
	bindGroup  hal.BindGroup

	frameScratch []byte
}

var _ fusion.Backend = (*Backend)(nil)

// NewBackend compiles the fusion kernels and builds the compute pipelines on
// the probed device.
func NewBackend(ctx *Context) (*Backend, error) {
	if ctx == nil || ctx.device == nil {
		return nil, fmt.Errorf("device: backend needs a probed context")
	}
	b := &Backend{ctx: ctx}
	if err := b.createPipelines(); err != nil {
		b.destroyPipelines()
		return nil, err
	}
	return b, nil
}

// Name implements fusion.Backend.
func (b *Backend) Name() string { return "gpu" }

func (b *Backend) createPipelines() error {
	spirvBytes, err := naga.Compile(fusionShaderWGSL)
	if err != nil {
		return fmt.Errorf("device: compile fusion shader: %w", err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	shader, err := b.ctx.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "fusion_kernels",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("device: create shader module: %w", err)
	}
	b.shader = shader

	bindLayout, err := b.ctx.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "fusion_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("device: create bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipeLayout, err := b.ctx.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "fusion_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("device: create pipeline layout: %w", err)
	}
	b.pipeLayout = pipeLayout

	for _, p := range []struct {
		entry string
		dst   *hal.ComputePipeline
	}{
		{"cs_reset", &b.resetPipe},
		{"cs_accumulate", &b.accumPipe},
		{"cs_finalize", &b.finalPipe},
		{"cs_minmax", &b.minmaxPipe},
	} {
		pipe, err := b.ctx.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   "fusion_" + p.entry,
			Layout:  b.pipeLayout,
			Compute: hal.ComputeState{Module: b.shader, EntryPoint: p.entry},
		})
		if err != nil {
			return fmt.Errorf("device: create %s pipeline: %w", p.entry, err)
		}
		*p.dst = pipe
	}
	return nil
}

// Begin implements fusion.Backend: it allocates the per-stack buffers and
// zeroes the moment state on the device.
func (b *Backend) Begin(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("device: invalid dimensions %dx%d", width, height)
	}
	b.releaseBuffers()
	b.width = width
	b.height = height
	b.pixelCount = width * height

	frameSize := uint64(b.pixelCount) * 4
	stateSize := uint64(b.pixelCount) * stateStride
	resultSize := uint64(b.pixelCount) * resultStride
	rangeSize := uint64(b.workgroups()) * rangeStride

	bufs := []struct {
		label string
		size  uint64
		usage gputypes.BufferUsage
		dst   *hal.Buffer
	}{
		{"fusion_params", paramsSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst, &b.paramsBuf},
		{"fusion_frame", frameSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst, &b.frameBuf},
		{"fusion_state", stateSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc, &b.stateBuf},
		{"fusion_result", resultSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc, &b.resultBuf},
		{"fusion_range", rangeSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc, &b.rangeBuf},
		{"fusion_staging", stateSize, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst, &b.stagingBuf},
	}
	for _, def := range bufs {
		buf, err := b.ctx.device.CreateBuffer(&hal.BufferDescriptor{
			Label: def.label,
			Size:  def.size,
			Usage: def.usage,
		})
		if err != nil {
			b.releaseBuffers()
			return fmt.Errorf("device: create %s buffer: %w", def.label, err)
		}
		*def.dst = buf
	}

	b.writeParams(false)

	bg, err := b.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "fusion_bind",
		Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.paramsBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: b.frameBuf.NativeHandle(), Offset: 0, Size: frameSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: b.stateBuf.NativeHandle(), Offset: 0, Size: stateSize}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: b.resultBuf.NativeHandle(), Offset: 0, Size: resultSize}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: b.rangeBuf.NativeHandle(), Offset: 0, Size: rangeSize}},
		},
	})
	if err != nil {
		b.releaseBuffers()
		return fmt.Errorf("device: create bind group: %w", err)
	}
	b.bindGroup = bg
	b.frameScratch = make([]byte, frameSize)

	if err := b.dispatch(b.resetPipe, nil, 0); err != nil {
		b.releaseBuffers()
		return fmt.Errorf("device: reset state: %w", err)
	}
	return nil
}

func (b *Backend) writeParams(uncorrected bool) {
	params := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(params[0:], uint32(b.pixelCount))
	if uncorrected {
		binary.LittleEndian.PutUint32(params[4:], 1)
	}
	b.ctx.queue.WriteBuffer(b.paramsBuf, 0, params)
}

// AccumulateFrame implements fusion.Backend: one upload plus one dispatch per
// frame. Frame order is preserved because each dispatch completes (submission
// index observed via PollCompleted) before the next upload starts.
func (b *Backend) AccumulateFrame(f *fusion.Frame) error {
	if b.bindGroup == nil {
		return fmt.Errorf("device: AccumulateFrame before Begin")
	}
	if f.Width != b.width || f.Height != b.height {
		return fmt.Errorf("device: frame dimensions %dx%d do not match %dx%d",
			f.Width, f.Height, b.width, b.height)
	}

	for i, v := range f.Pixels {
		binary.LittleEndian.PutUint32(b.frameScratch[i*4:], math.Float32bits(v))
	}
	b.ctx.queue.WriteBuffer(b.frameBuf, 0, b.frameScratch)
	return b.dispatch(b.accumPipe, nil, 0)
}

// Finalize implements fusion.Backend: a single finalize dispatch followed by
// a staged readback of the result matrices.
func (b *Backend) Finalize(stack *fusion.ImageStack, cfg *fusion.ProcessingConfig, out *fusion.FusionResult) error {
	if b.bindGroup == nil {
		return fmt.Errorf("device: Finalize before Begin")
	}
	if cfg.Strategy != fusion.StrategyMLE && cfg.Strategy != fusion.StrategyMultiScale {
		return fmt.Errorf("device: strategy %s needs per-frame values; use the host backend", cfg.Strategy)
	}
	if out.Width != b.width || out.Height != b.height {
		return fmt.Errorf("device: result dimensions %dx%d do not match %dx%d",
			out.Width, out.Height, b.width, b.height)
	}

	b.writeParams(cfg.Uncorrected)

	resultSize := uint64(b.pixelCount) * resultStride
	if err := b.dispatch(b.finalPipe, b.resultBuf, resultSize); err != nil {
		return err
	}
	readback, err := b.readStaging(resultSize)
	if err != nil {
		return fmt.Errorf("device: read result buffer: %w", err)
	}

	for i := 0; i < b.pixelCount; i++ {
		off := i * resultStride
		out.Fused[i] = math.Float32frombits(binary.LittleEndian.Uint32(readback[off:]))
		out.Confidence[i] = math.Float32frombits(binary.LittleEndian.Uint32(readback[off+4:]))
		out.Variance[i] = math.Float32frombits(binary.LittleEndian.Uint32(readback[off+8:]))
		if out.Classification != nil {
			class := math.Float32frombits(binary.LittleEndian.Uint32(readback[off+12:]))
			out.Classification[i] = fusion.DistributionType(class)
		}
	}

	// Global fused range: block-level reduction on the device, final fold of
	// the per-workgroup partials on the host.
	rangeSize := uint64(b.workgroups()) * rangeStride
	if err := b.dispatch(b.minmaxPipe, b.rangeBuf, rangeSize); err != nil {
		return err
	}
	rangeBack, err := b.readStaging(rangeSize)
	if err != nil {
		return fmt.Errorf("device: read range buffer: %w", err)
	}
	parts := make([]rangePartial, b.workgroups())
	for i := range parts {
		off := i * rangeStride
		parts[i].lo = math.Float32frombits(binary.LittleEndian.Uint32(rangeBack[off:]))
		parts[i].hi = math.Float32frombits(binary.LittleEndian.Uint32(rangeBack[off+4:]))
	}
	out.SetFusedRange(foldRange(parts))
	return nil
}

// Distribution implements fusion.Backend. It reads the full state buffer
// back; diagnostics only, not a hot path.
func (b *Backend) Distribution(x, y int) fusion.PixelDistribution {
	var d fusion.PixelDistribution
	if b.bindGroup == nil {
		return d
	}
	stateSize := uint64(b.pixelCount) * stateStride
	if err := b.copyToStaging(b.stateBuf, stateSize); err != nil {
		return d
	}
	off := (y*b.width + x) * stateStride
	readback, err := b.readStaging(stateSize)
	if err != nil {
		return d
	}
	f32 := func(at int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(readback[off+at:]))
	}
	d.N = uint32(f32(0))
	d.Mean = float64(f32(4))
	d.M2 = float64(f32(8))
	d.M3 = float64(f32(12))
	d.M4 = float64(f32(16))
	d.Min = f32(20)
	d.Max = f32(24)
	return d
}

// dispatch runs one compute pass over the pixel grid and waits for the
// submission to complete. When copySrc is non-nil its first copySize bytes are
// copied into the staging buffer as part of the same submission.
func (b *Backend) dispatch(pipe hal.ComputePipeline, copySrc hal.Buffer, copySize uint64) error {
	encoder, err := b.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fusion_encoder"})
	if err != nil {
		return fmt.Errorf("device: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fusion"); err != nil {
		return fmt.Errorf("device: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "fusion_pass"})
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, b.bindGroup, nil)
	pass.Dispatch(uint32(b.workgroups()), 1, 1)
	pass.End()

	if copySrc != nil {
		encoder.CopyBufferToBuffer(copySrc, b.stagingBuf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: copySize},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("device: end encoding: %w", err)
	}
	defer b.ctx.device.FreeCommandBuffer(cmdBuf)

	idx, err := b.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("device: submit: %w", err)
	}
	return b.waitSubmission(idx)
}

// copyToStaging issues a bare copy command (no compute pass) and waits.
func (b *Backend) copyToStaging(src hal.Buffer, size uint64) error {
	encoder, err := b.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fusion_copy"})
	if err != nil {
		return fmt.Errorf("device: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fusion_copy"); err != nil {
		return fmt.Errorf("device: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(src, b.stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("device: end encoding: %w", err)
	}
	defer b.ctx.device.FreeCommandBuffer(cmdBuf)

	idx, err := b.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("device: submit: %w", err)
	}
	return b.waitSubmission(idx)
}

func (b *Backend) workgroups() int {
	return (b.pixelCount + workgroupSize - 1) / workgroupSize
}

// waitSubmission blocks until the queue reports the submission index as
// completed. The HAL owns the fences; completion is observed by polling.
func (b *Backend) waitSubmission(idx uint64) error {
	deadline := time.Now().Add(submitTimeout)
	for b.ctx.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fmt.Errorf("device: submission %d not completed after %s", idx, submitTimeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// readStaging maps the MapRead staging buffer and copies out the first size
// bytes. Callers must have waited for the producing submission first.
func (b *Backend) readStaging(size uint64) ([]byte, error) {
	mapping, err := b.ctx.device.MapBuffer(b.stagingBuf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("device: map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := b.ctx.device.UnmapBuffer(b.stagingBuf); err != nil {
		return nil, fmt.Errorf("device: unmap staging buffer: %w", err)
	}
	return out, nil
}

func (b *Backend) releaseBuffers() {
	if b.bindGroup != nil {
		b.ctx.device.DestroyBindGroup(b.bindGroup)
		b.bindGroup = nil
	}
	for _, buf := range []*hal.Buffer{&b.paramsBuf, &b.frameBuf, &b.stateBuf, &b.resultBuf, &b.rangeBuf, &b.stagingBuf} {
		if *buf != nil {
			b.ctx.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
	b.frameScratch = nil
}

func (b *Backend) destroyPipelines() {
	dev := b.ctx.device
	if dev == nil {
		return
	}
	for _, p := range []*hal.ComputePipeline{&b.resetPipe, &b.accumPipe, &b.finalPipe, &b.minmaxPipe} {
		if *p != nil {
			dev.DestroyComputePipeline(*p)
			*p = nil
		}
	}
	if b.pipeLayout != nil {
		dev.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		dev.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.shader != nil {
		dev.DestroyShaderModule(b.shader)
		b.shader = nil
	}
}

// Close implements fusion.Backend: it releases buffers and pipelines but
// leaves the Context open for the caller to reuse or Close.
func (b *Backend) Close() {
	b.releaseBuffers()
	b.destroyPipelines()
}
