package renderpass

import (
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/backendtest"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newGraph(t *testing.T, samples metadata.SampleCount, lights LightCounts) (*backendtest.Backend, *metadata.Swapchain, *Graph) {
	t.Helper()
	backend := backendtest.New(metadata.Extent2D{Width: 800, Height: 600})
	sc, err := backend.CreateSwapchain(backend.SurfaceExtent())
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGraph(backend, sc, &Config{
		Samples:        samples,
		ClearColor:     [4]float32{0.1, 0.2, 0.3, 1},
		ShadowMapSize:  512,
		Lights:         lights,
		FramesInFlight: 2,
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return backend, sc, g
}

func TestForwardPassMultisampled(t *testing.T) {
	backend, sc, g := newGraph(t, metadata.SampleCount4, LightCounts{Directional: 1})

	desc, ok := backend.RenderPassDescription(g.Forward.Handle)
	if !ok {
		t.Fatal("forward pass not created")
	}
	if len(desc.Attachments) != 3 {
		t.Fatalf("attachments: have %d, want color, depth and resolve", len(desc.Attachments))
	}
	if desc.Attachments[0].Samples != metadata.SampleCount4 || desc.Attachments[1].Samples != metadata.SampleCount4 {
		t.Errorf("color and depth must be multisampled: %+v", desc.Attachments)
	}
	resolve := desc.Attachments[2]
	if resolve.Samples != metadata.SampleCount1 || resolve.FinalLayout != metadata.ImageLayoutPresentSrc {
		t.Errorf("resolve attachment: have %+v", resolve)
	}
	if len(desc.Subpasses[0].ResolveAttachments) != 1 || desc.Subpasses[0].DepthAttachment == nil {
		t.Errorf("subpass must reference depth and resolve: %+v", desc.Subpasses[0])
	}

	if g.Forward.FramebufferCount() != len(sc.Images) {
		t.Fatalf("framebuffers: have %d, want one per swap image (%d)", g.Forward.FramebufferCount(), len(sc.Images))
	}
	for i, img := range sc.Images {
		fb, err := g.Framebuffer(uint32(i))
		if err != nil {
			t.Fatal(err)
		}
		info, _ := backend.FramebufferInfo(fb)
		if info.Attachments[2] != img {
			t.Errorf("framebuffer %d resolves into %d, want swap image %d", i, info.Attachments[2], img)
		}
		if info.Extent != sc.Extent {
			t.Errorf("framebuffer %d extent: have %+v, want %+v", i, info.Extent, sc.Extent)
		}
	}
	if _, err := g.Framebuffer(uint32(len(sc.Images))); err == nil {
		t.Errorf("out of range framebuffer index must fail")
	}
	if sig := g.Forward.Signature(); sig.Samples != metadata.SampleCount4 || sig.ColorAttachments != 1 {
		t.Errorf("signature: have %+v", sig)
	}
}

func TestForwardPassSingleSample(t *testing.T) {
	backend, sc, g := newGraph(t, metadata.SampleCount1, LightCounts{})

	desc, _ := backend.RenderPassDescription(g.Forward.Handle)
	if len(desc.Attachments) != 2 || len(desc.Subpasses[0].ResolveAttachments) != 0 {
		t.Fatalf("single sampled pass must not resolve: %+v", desc)
	}
	fb, _ := g.Framebuffer(1)
	info, _ := backend.FramebufferInfo(fb)
	if info.Attachments[0] != sc.Images[1] {
		t.Errorf("color attachment: have %d, want swap image %d", info.Attachments[0], sc.Images[1])
	}
	if backend.Live("image") != 1 {
		t.Errorf("only the depth image is owned, have %d images", backend.Live("image"))
	}
}

func TestForwardPassClampsSamples(t *testing.T) {
	backend := backendtest.New(metadata.Extent2D{Width: 64, Height: 64})
	backend.SetMaxSampleCount(metadata.SampleCount2)
	sc, _ := backend.CreateSwapchain(backend.SurfaceExtent())
	g, err := NewGraph(backend, sc, &Config{Samples: metadata.SampleCount8, ShadowMapSize: 64, FramesInFlight: 2})
	if err != nil {
		t.Fatal(err)
	}
	if g.Forward.Samples != metadata.SampleCount2 {
		t.Errorf("samples: have %d, want 2", g.Forward.Samples)
	}
}

func TestForwardPassRecreate(t *testing.T) {
	backend, _, g := newGraph(t, metadata.SampleCount4, LightCounts{Spot: 2})

	pass := g.Forward.Handle
	shadowImage := g.Shadow.Image()
	shadowFB, _ := g.ShadowFramebuffer(0)
	var old []metadata.Framebuffer
	for i := 0; i < g.Forward.FramebufferCount(); i++ {
		fb, _ := g.Framebuffer(uint32(i))
		old = append(old, fb)
	}

	if err := backend.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	sc, err := backend.CreateSwapchain(metadata.Extent2D{Width: 1024, Height: 768})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.OnSwapchainRecreated(sc); err != nil {
		t.Fatalf("OnSwapchainRecreated: %v", err)
	}

	if g.Forward.Handle != pass {
		t.Errorf("render pass must survive a resize")
	}
	if g.Forward.Generation() != sc.Generation {
		t.Errorf("generation: have %d, want %d", g.Forward.Generation(), sc.Generation)
	}
	for i := 0; i < g.Forward.FramebufferCount(); i++ {
		fb, _ := g.Framebuffer(uint32(i))
		for _, o := range old {
			if fb == o {
				t.Errorf("framebuffer %d reused across the resize", fb)
			}
		}
		info, _ := backend.FramebufferInfo(fb)
		if info.Extent != sc.Extent {
			t.Errorf("framebuffer extent: have %+v, want %+v", info.Extent, sc.Extent)
		}
	}
	for _, o := range old {
		if info, _ := backend.FramebufferInfo(o); !info.Destroyed {
			t.Errorf("old framebuffer %d not destroyed", o)
		}
	}
	if g.Shadow.Image() != shadowImage {
		t.Errorf("shadow image must not change on resize")
	}
	if fb, _ := g.ShadowFramebuffer(0); fb != shadowFB {
		t.Errorf("shadow framebuffer must not change on resize")
	}
}

func TestShadowPass(t *testing.T) {
	backend, _, g := newGraph(t, metadata.SampleCount1, LightCounts{Directional: 2, Spot: 3, Point: 1})

	if want := uint32(2 + 3 + 6); g.Shadow.Lights.Layers() != want {
		t.Fatalf("layers: have %d, want %d", g.Shadow.Lights.Layers(), want)
	}
	img, ok := backend.ImageDescription(g.Shadow.Image())
	if !ok {
		t.Fatal("shadow image not created")
	}
	if img.Layers != 11 || img.Width != 512 || img.ViewType != metadata.ImageViewType2DArray || !img.Format.IsDepth() {
		t.Errorf("shadow image: have %+v", img)
	}
	if img.Usage&metadata.ImageUsageSampled == 0 {
		t.Errorf("shadow image must be sampled by the forward pass")
	}

	desc, _ := backend.RenderPassDescription(g.Shadow.Handle)
	if len(desc.Attachments) != 1 || desc.Attachments[0].FinalLayout != metadata.ImageLayoutShaderReadOnly {
		t.Errorf("shadow pass must be depth only and end shader readable: %+v", desc.Attachments)
	}
	if len(desc.Subpasses[0].ColorAttachments) != 0 {
		t.Errorf("shadow pass has color attachments")
	}

	if g.Shadow.FramebufferCount() != 2 {
		t.Fatalf("shadow framebuffers: have %d, want one per frame in flight", g.Shadow.FramebufferCount())
	}
	for i := uint32(0); i < 2; i++ {
		fb, _ := g.ShadowFramebuffer(i)
		info, _ := backend.FramebufferInfo(fb)
		if len(info.Attachments) != 1 || info.Attachments[0] != g.Shadow.Image() || info.Layers != 11 {
			t.Errorf("shadow framebuffer %d: have %+v", i, info)
		}
	}
}

func TestShadowPassSetMaxLights(t *testing.T) {
	backend, _, g := newGraph(t, metadata.SampleCount1, LightCounts{Directional: 1, Spot: 6})
	before := g.Shadow.Image()
	pass := g.Shadow.Handle
	idles := backend.Stats().WaitIdles

	// Same layer count: nothing is rebuilt.
	if err := g.SetMaxLights(LightCounts{Directional: 1, Point: 1}); err != nil {
		t.Fatal(err)
	}
	if g.Shadow.Image() != before || backend.Stats().WaitIdles != idles {
		t.Errorf("equal layer count must not rebuild the shadow map")
	}

	if err := g.SetMaxLights(LightCounts{Directional: 4}); err != nil {
		t.Fatal(err)
	}
	if g.Shadow.Image() == before {
		t.Fatalf("shadow image not rebuilt")
	}
	if backend.Stats().WaitIdles != idles+1 {
		t.Errorf("rebuild must wait for the device")
	}
	if g.Shadow.Handle != pass {
		t.Errorf("render pass must be kept")
	}
	img, _ := backend.ImageDescription(g.Shadow.Image())
	if img.Layers != 4 {
		t.Errorf("layers: have %d, want 4", img.Layers)
	}

	if err := g.SetMaxLights(LightCounts{}); err != nil {
		t.Fatal(err)
	}
	if g.Shadow.Enabled() || g.Shadow.Image() != 0 || g.Shadow.FramebufferCount() != 0 {
		t.Errorf("no lights must leave no shadow resources")
	}
}

func TestGraphDestroy(t *testing.T) {
	backend, _, g := newGraph(t, metadata.SampleCount4, LightCounts{Point: 1})
	g.Destroy()
	for _, kind := range []string{"image", "framebuffer", "render-pass"} {
		if n := backend.Live(kind); n != 0 {
			t.Errorf("%d %s objects left after Destroy", n, kind)
		}
	}
}

func TestBeginRecordsViewport(t *testing.T) {
	backend, sc, g := newGraph(t, metadata.SampleCount1, LightCounts{})
	cb, _ := backend.AllocateCommandBuffer()
	rec, _ := backend.BeginCommandBuffer(cb)
	if err := g.Forward.Begin(rec, 0); err != nil {
		t.Fatal(err)
	}
	g.Forward.End(rec)
	if err := backend.Submit(&metadata.SubmitInfo{CommandBuffer: cb}); err != nil {
		t.Fatal(err)
	}

	cmds := backend.Submissions()[0].Commands
	if len(cmds) != 4 || cmds[0].Op != "BeginRenderPass" || cmds[1].Op != "SetViewport" || cmds[2].Op != "SetScissor" || cmds[3].Op != "EndRenderPass" {
		t.Fatalf("commands: have %+v", cmds)
	}
	if cmds[0].Extent != sc.Extent || cmds[1].Viewport.Width != float32(sc.Extent.Width) {
		t.Errorf("render area does not cover the swapchain: %+v", cmds[:2])
	}
	if cmds[0].Clears[0].Color != [4]float32{0.1, 0.2, 0.3, 1} || cmds[0].Clears[1].Depth != 1 {
		t.Errorf("clear values: have %+v", cmds[0].Clears)
	}
}
