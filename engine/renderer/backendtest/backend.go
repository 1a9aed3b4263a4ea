// Package backendtest provides an in-memory metadata.RendererBackend that
// records what the renderer asks of the device.
package backendtest

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Command is one call recorded through a CommandRecorder. Only the fields
// relevant to Op are set.
type Command struct {
	Op            string
	RenderPass    metadata.RenderPass
	Framebuffer   metadata.Framebuffer
	Extent        metadata.Extent2D
	Clears        []metadata.ClearValue
	Viewport      metadata.Viewport
	Scissor       metadata.Rect2D
	Pipeline      metadata.Pipeline
	DescriptorSet metadata.DescriptorSet
	Stages        metadata.ShaderStage
	Offset        uint32
	Data          []byte
	Buffers       []metadata.Buffer
	Offsets       []uint64
	IndexCount    uint32
}

// Submission is one call to Submit along with the commands recorded into its
// command buffer.
type Submission struct {
	Info     metadata.SubmitInfo
	Commands []Command
}

type FramebufferInfo struct {
	Pass        metadata.RenderPass
	Attachments []metadata.Image
	Extent      metadata.Extent2D
	Layers      uint32
	Destroyed   bool
}

// Stats counts device operations.
type Stats struct {
	Acquires          int
	Submits           int
	Presents          int
	WaitIdles         int
	FenceWaits        int
	BufferWrites      int
	ImageWrites       int
	DescriptorUpdates int
	SwapchainCreates  int
}

type fence struct {
	signaled bool
}

type buffer struct {
	usage metadata.BufferUsage
	data  []byte
}

// Backend is safe for use from the render goroutine and a test goroutine at
// the same time.
type Backend struct {
	mu   sync.Mutex
	cond *sync.Cond

	next    uint32
	objects map[uint32]string

	surface    metadata.Extent2D
	imageCount int
	maxSamples metadata.SampleCount
	swapchain  *metadata.Swapchain
	generation uint32
	imageIndex uint32

	fences       map[metadata.Fence]*fence
	manual       bool
	waiting      chan<- metadata.Fence
	buffers      map[metadata.Buffer]*buffer
	images       map[metadata.Image]metadata.ImageDescription
	pixels       map[metadata.Image][]byte
	framebuffers map[metadata.Framebuffer]*FramebufferInfo
	passes       map[metadata.RenderPass]metadata.RenderPassDescription
	pipelines    map[metadata.Pipeline]metadata.PipelineDescription
	layouts      map[metadata.DescriptorSetLayout][]metadata.DescriptorBinding
	sets         map[metadata.DescriptorSet]map[uint32]metadata.DescriptorWrite
	recording    map[metadata.CommandBuffer]*[]Command

	submissions []Submission
	stats       Stats

	acquireErrs []error
	presentErrs []error
	submitErr   error
	bufferErr   error
}

// New returns a backend whose surface reports extent and whose swapchains
// hold three images.
func New(extent metadata.Extent2D) *Backend {
	b := &Backend{
		next:         1,
		objects:      make(map[uint32]string),
		surface:      extent,
		imageCount:   3,
		maxSamples:   metadata.SampleCount8,
		fences:       make(map[metadata.Fence]*fence),
		buffers:      make(map[metadata.Buffer]*buffer),
		images:       make(map[metadata.Image]metadata.ImageDescription),
		pixels:       make(map[metadata.Image][]byte),
		framebuffers: make(map[metadata.Framebuffer]*FramebufferInfo),
		passes:       make(map[metadata.RenderPass]metadata.RenderPassDescription),
		pipelines:    make(map[metadata.Pipeline]metadata.PipelineDescription),
		layouts:      make(map[metadata.DescriptorSetLayout][]metadata.DescriptorBinding),
		sets:         make(map[metadata.DescriptorSet]map[uint32]metadata.DescriptorWrite),
		recording:    make(map[metadata.CommandBuffer]*[]Command),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Backend) alloc(kind string) uint32 {
	h := b.next
	b.next++
	b.objects[h] = kind
	return h
}

func (b *Backend) release(h uint32, kind string) {
	if b.objects[h] == kind {
		delete(b.objects, h)
	}
}

// SetSurfaceExtent changes what SurfaceExtent reports.
func (b *Backend) SetSurfaceExtent(e metadata.Extent2D) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface = e
}

func (b *Backend) SetImageCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imageCount = n
}

func (b *Backend) SetMaxSampleCount(s metadata.SampleCount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxSamples = s
}

// FailAcquire queues errors returned by the next calls to AcquireNextImage.
func (b *Backend) FailAcquire(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquireErrs = append(b.acquireErrs, errs...)
}

// FailPresent queues errors returned by the next calls to Present.
func (b *Backend) FailPresent(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentErrs = append(b.presentErrs, errs...)
}

// FailSubmit makes every following Submit return err.
func (b *Backend) FailSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

// FailBufferCreation makes every following CreateBuffer return err.
func (b *Backend) FailBufferCreation(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bufferErr = err
}

// ManualFences stops submissions from completing on their own. A fence
// submitted with work stays unsignaled until Complete is called, and
// WaitForFence blocks until then, first sending the fence on waiting.
func (b *Backend) ManualFences(waiting chan<- metadata.Fence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manual = true
	b.waiting = waiting
}

// Complete signals fence as if the GPU had finished the work submitted with
// it.
func (b *Backend) Complete(f metadata.Fence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fc, ok := b.fences[f]; ok {
		fc.signaled = true
	}
	b.cond.Broadcast()
}

// FenceSignaled reports the current state of f.
func (b *Backend) FenceSignaled(f metadata.Fence) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fc, ok := b.fences[f]
	return ok && fc.signaled
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Submissions returns every submission so far, oldest first.
func (b *Backend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Submission(nil), b.submissions...)
}

// BufferData returns a copy of the contents of buf.
func (b *Backend) BufferData(buf metadata.Buffer) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bb, ok := b.buffers[buf]; ok {
		return append([]byte(nil), bb.data...)
	}
	return nil
}

func (b *Backend) BufferUsage(buf metadata.Buffer) metadata.BufferUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bb, ok := b.buffers[buf]; ok {
		return bb.usage
	}
	return 0
}

func (b *Backend) ImageDescription(img metadata.Image) (metadata.ImageDescription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.images[img]
	return d, ok
}

func (b *Backend) ImagePixels(img metadata.Image) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.pixels[img]...)
}

// FramebufferInfo returns what a framebuffer was created with. It keeps
// answering after the framebuffer is destroyed.
func (b *Backend) FramebufferInfo(fb metadata.Framebuffer) (FramebufferInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.framebuffers[fb]
	if !ok {
		return FramebufferInfo{}, false
	}
	return *info, true
}

func (b *Backend) RenderPassDescription(p metadata.RenderPass) (metadata.RenderPassDescription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.passes[p]
	return d, ok
}

func (b *Backend) PipelineDescription(p metadata.Pipeline) (metadata.PipelineDescription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.pipelines[p]
	return d, ok
}

func (b *Backend) SetLayoutBindings(l metadata.DescriptorSetLayout) []metadata.DescriptorBinding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]metadata.DescriptorBinding(nil), b.layouts[l]...)
}

// DescriptorWrites returns the last write applied to every binding of set.
func (b *Backend) DescriptorWrites(set metadata.DescriptorSet) map[uint32]metadata.DescriptorWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint32]metadata.DescriptorWrite, len(b.sets[set]))
	for k, v := range b.sets[set] {
		out[k] = v
	}
	return out
}

// Live returns the number of objects of kind still alive, or of every kind
// when kind is empty. The swapchain images are not counted.
func (b *Backend) Live(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.objects {
		if k == "swapchain-image" {
			continue
		}
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

func (b *Backend) SurfaceExtent() metadata.Extent2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

func (b *Backend) DepthFormat() metadata.Format {
	return metadata.FormatD32Sfloat
}

func (b *Backend) MaxSampleCount() metadata.SampleCount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxSamples
}

func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.WaitIdles++
	if !b.manual {
		for _, f := range b.fences {
			f.signaled = true
		}
	}
	return nil
}

func (b *Backend) CreateSwapchain(extent metadata.Extent2D) (*metadata.Swapchain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if extent.IsZero() {
		return nil, fmt.Errorf("swapchain with zero extent %dx%d", extent.Width, extent.Height)
	}
	b.destroySwapchain()
	b.generation++
	sc := &metadata.Swapchain{
		Extent:     extent,
		Format:     metadata.FormatB8G8R8A8Srgb,
		Generation: b.generation,
	}
	for i := 0; i < b.imageCount; i++ {
		img := metadata.Image(b.alloc("swapchain-image"))
		b.images[img] = metadata.ImageDescription{
			Name:   fmt.Sprintf("swapchain_%d", i),
			Width:  extent.Width,
			Height: extent.Height,
			Layers: 1,
			Format: sc.Format,
		}
		sc.Images = append(sc.Images, img)
	}
	b.swapchain = sc
	b.imageIndex = 0
	b.stats.SwapchainCreates++
	return sc, nil
}

func (b *Backend) DestroySwapchain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroySwapchain()
}

func (b *Backend) destroySwapchain() {
	if b.swapchain == nil {
		return
	}
	for _, img := range b.swapchain.Images {
		b.release(uint32(img), "swapchain-image")
	}
	b.swapchain = nil
}

func (b *Backend) AcquireNextImage(signal metadata.Semaphore) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Acquires++
	if len(b.acquireErrs) > 0 {
		err := b.acquireErrs[0]
		b.acquireErrs = b.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if b.swapchain == nil {
		return 0, core.ErrSwapchainOutOfDate
	}
	idx := b.imageIndex
	b.imageIndex = (b.imageIndex + 1) % uint32(len(b.swapchain.Images))
	return idx, nil
}

func (b *Backend) Present(imageIndex uint32, wait metadata.Semaphore) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Presents++
	if len(b.presentErrs) > 0 {
		err := b.presentErrs[0]
		b.presentErrs = b.presentErrs[1:]
		return err
	}
	return nil
}

func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := metadata.Fence(b.alloc("fence"))
	b.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (b *Backend) DestroyFence(f metadata.Fence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(f), "fence")
}

func (b *Backend) WaitForFence(f metadata.Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fc, ok := b.fences[f]
	if !ok {
		return fmt.Errorf("%w: fence %d", core.ErrInvalidHandle, f)
	}
	b.stats.FenceWaits++
	if !fc.signaled && b.manual && b.waiting != nil {
		b.mu.Unlock()
		b.waiting <- f
		b.mu.Lock()
	}
	for !fc.signaled {
		if !b.manual {
			fc.signaled = true
			break
		}
		b.cond.Wait()
	}
	return nil
}

func (b *Backend) ResetFence(f metadata.Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fc, ok := b.fences[f]
	if !ok {
		return fmt.Errorf("%w: fence %d", core.ErrInvalidHandle, f)
	}
	fc.signaled = false
	return nil
}

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return metadata.Semaphore(b.alloc("semaphore")), nil
}

func (b *Backend) DestroySemaphore(s metadata.Semaphore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(s), "semaphore")
}

func (b *Backend) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return metadata.CommandBuffer(b.alloc("command-buffer")), nil
}

func (b *Backend) FreeCommandBuffer(cb metadata.CommandBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(cb), "command-buffer")
	delete(b.recording, cb)
}

func (b *Backend) BeginCommandBuffer(cb metadata.CommandBuffer) (metadata.CommandRecorder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects[uint32(cb)] != "command-buffer" {
		return nil, fmt.Errorf("%w: command buffer %d", core.ErrInvalidHandle, cb)
	}
	cmds := &[]Command{}
	b.recording[cb] = cmds
	return &recorder{backend: b, cmds: cmds}, nil
}

func (b *Backend) Submit(info *metadata.SubmitInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return b.submitErr
	}
	b.stats.Submits++
	var cmds []Command
	if rec, ok := b.recording[info.CommandBuffer]; ok {
		cmds = append(cmds, *rec...)
	}
	b.submissions = append(b.submissions, Submission{Info: *info, Commands: cmds})
	if fc, ok := b.fences[info.Fence]; ok && !b.manual {
		fc.signaled = true
	}
	return nil
}

func (b *Backend) CreateBuffer(size uint64, usage metadata.BufferUsage) (metadata.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bufferErr != nil {
		return 0, b.bufferErr
	}
	if size == 0 {
		return 0, fmt.Errorf("buffer of size zero")
	}
	buf := metadata.Buffer(b.alloc("buffer"))
	b.buffers[buf] = &buffer{usage: usage, data: make([]byte, size)}
	return buf, nil
}

func (b *Backend) DestroyBuffer(buf metadata.Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(buf), "buffer")
}

func (b *Backend) WriteBuffer(buf metadata.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bb, ok := b.buffers[buf]
	if !ok || b.objects[uint32(buf)] != "buffer" {
		return fmt.Errorf("%w: buffer %d", core.ErrInvalidHandle, buf)
	}
	if offset+uint64(len(data)) > uint64(len(bb.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, buf, len(bb.data))
	}
	copy(bb.data[offset:], data)
	b.stats.BufferWrites++
	return nil
}

func (b *Backend) CreateImage(desc *metadata.ImageDescription) (metadata.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("image `%s` has zero extent", desc.Name)
	}
	img := metadata.Image(b.alloc("image"))
	b.images[img] = *desc
	return img, nil
}

func (b *Backend) DestroyImage(img metadata.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(img), "image")
}

func (b *Backend) WriteImage(img metadata.Image, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc, ok := b.images[img]
	if !ok {
		return fmt.Errorf("%w: image %d", core.ErrInvalidHandle, img)
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	if want := int(desc.Width * desc.Height * layers * desc.Format.Size()); len(pixels) != want {
		return fmt.Errorf("image `%s` expects %d bytes, have %d", desc.Name, want, len(pixels))
	}
	b.pixels[img] = append([]byte(nil), pixels...)
	b.stats.ImageWrites++
	return nil
}

func (b *Backend) CreateSampler(desc *metadata.SamplerDescription) (metadata.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return metadata.Sampler(b.alloc("sampler")), nil
}

func (b *Backend) DestroySampler(s metadata.Sampler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(s), "sampler")
}

func (b *Backend) CreateRenderPass(desc *metadata.RenderPassDescription) (metadata.RenderPass, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(desc.Subpasses) == 0 {
		return 0, fmt.Errorf("render pass `%s` has no subpass", desc.Name)
	}
	p := metadata.RenderPass(b.alloc("render-pass"))
	b.passes[p] = *desc
	return p, nil
}

func (b *Backend) DestroyRenderPass(p metadata.RenderPass) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(p), "render-pass")
}

func (b *Backend) CreateFramebuffer(pass metadata.RenderPass, attachments []metadata.Image, extent metadata.Extent2D, layers uint32) (metadata.Framebuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc, ok := b.passes[pass]
	if !ok {
		return 0, fmt.Errorf("%w: render pass %d", core.ErrInvalidHandle, pass)
	}
	if len(attachments) != len(desc.Attachments) {
		return 0, fmt.Errorf("render pass `%s` has %d attachments, framebuffer has %d", desc.Name, len(desc.Attachments), len(attachments))
	}
	for _, img := range attachments {
		if _, live := b.objects[uint32(img)]; !live {
			return 0, fmt.Errorf("%w: attachment image %d", core.ErrInvalidHandle, img)
		}
	}
	fb := metadata.Framebuffer(b.alloc("framebuffer"))
	b.framebuffers[fb] = &FramebufferInfo{
		Pass:        pass,
		Attachments: append([]metadata.Image(nil), attachments...),
		Extent:      extent,
		Layers:      layers,
	}
	return fb, nil
}

func (b *Backend) DestroyFramebuffer(fb metadata.Framebuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(fb), "framebuffer")
	if info, ok := b.framebuffers[fb]; ok {
		info.Destroyed = true
	}
}

func (b *Backend) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := metadata.DescriptorSetLayout(b.alloc("descriptor-set-layout"))
	b.layouts[l] = append([]metadata.DescriptorBinding(nil), bindings...)
	return l, nil
}

func (b *Backend) DestroyDescriptorSetLayout(l metadata.DescriptorSetLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(l), "descriptor-set-layout")
}

func (b *Backend) AllocateDescriptorSet(l metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.layouts[l]; !ok {
		return 0, fmt.Errorf("%w: descriptor set layout %d", core.ErrInvalidHandle, l)
	}
	s := metadata.DescriptorSet(b.alloc("descriptor-set"))
	b.sets[s] = make(map[uint32]metadata.DescriptorWrite)
	return s, nil
}

func (b *Backend) FreeDescriptorSet(s metadata.DescriptorSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(s), "descriptor-set")
}

func (b *Backend) UpdateDescriptorSet(s metadata.DescriptorSet, writes []metadata.DescriptorWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[s]
	if !ok {
		return fmt.Errorf("%w: descriptor set %d", core.ErrInvalidHandle, s)
	}
	for _, w := range writes {
		set[w.Binding] = w
	}
	b.stats.DescriptorUpdates++
	return nil
}

func (b *Backend) CreateShaderModule(code []byte) (metadata.ShaderModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, fmt.Errorf("%w: %d bytes", core.ErrInvalidShader, len(code))
	}
	return metadata.ShaderModule(b.alloc("shader-module")), nil
}

func (b *Backend) DestroyShaderModule(m metadata.ShaderModule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(m), "shader-module")
}

func (b *Backend) CreatePipeline(desc *metadata.PipelineDescription) (metadata.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.passes[desc.RenderPass]; !ok {
		return 0, fmt.Errorf("%w: render pass %d", core.ErrInvalidHandle, desc.RenderPass)
	}
	p := metadata.Pipeline(b.alloc("pipeline"))
	b.pipelines[p] = *desc
	return p, nil
}

func (b *Backend) DestroyPipeline(p metadata.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(uint32(p), "pipeline")
}

type recorder struct {
	backend *Backend
	cmds    *[]Command
}

func (r *recorder) add(c Command) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	*r.cmds = append(*r.cmds, c)
}

func (r *recorder) BeginRenderPass(pass metadata.RenderPass, fb metadata.Framebuffer, area metadata.Extent2D, clears []metadata.ClearValue) {
	r.add(Command{
		Op:          "BeginRenderPass",
		RenderPass:  pass,
		Framebuffer: fb,
		Extent:      area,
		Clears:      append([]metadata.ClearValue(nil), clears...),
	})
}

func (r *recorder) EndRenderPass() {
	r.add(Command{Op: "EndRenderPass"})
}

func (r *recorder) SetViewport(v metadata.Viewport) {
	r.add(Command{Op: "SetViewport", Viewport: v})
}

func (r *recorder) SetScissor(s metadata.Rect2D) {
	r.add(Command{Op: "SetScissor", Scissor: s})
}

func (r *recorder) BindPipeline(p metadata.Pipeline) {
	r.add(Command{Op: "BindPipeline", Pipeline: p})
}

func (r *recorder) BindDescriptorSet(p metadata.Pipeline, s metadata.DescriptorSet) {
	r.add(Command{Op: "BindDescriptorSet", Pipeline: p, DescriptorSet: s})
}

func (r *recorder) PushConstants(p metadata.Pipeline, stages metadata.ShaderStage, offset uint32, data []byte) {
	r.add(Command{Op: "PushConstants", Pipeline: p, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)})
}

func (r *recorder) BindVertexBuffers(buffers []metadata.Buffer, offsets []uint64) {
	r.add(Command{
		Op:      "BindVertexBuffers",
		Buffers: append([]metadata.Buffer(nil), buffers...),
		Offsets: append([]uint64(nil), offsets...),
	})
}

func (r *recorder) BindIndexBuffer(buf metadata.Buffer, offset uint64) {
	r.add(Command{Op: "BindIndexBuffer", Buffers: []metadata.Buffer{buf}, Offsets: []uint64{offset}})
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32) {
	r.add(Command{Op: "DrawIndexed", IndexCount: indexCount})
}

func (r *recorder) End() error {
	return nil
}

var _ metadata.RendererBackend = (*Backend)(nil)
