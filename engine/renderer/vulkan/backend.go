package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Config struct {
	ApplicationName string
	// Enables the Khronos validation layer and the debug report callback.
	Validation bool
	VSync      bool
}

/**
 * @brief Vulkan implementation of metadata.RendererBackend. Every object it
 * hands out is a small integer looked up in a per kind arena.
 */
type Backend struct {
	platform *platform.Platform
	config   Config

	allocator      *vk.AllocationCallbacks
	instance       vk.Instance
	debugCallback  vk.DebugReportCallback
	surface        vk.Surface
	device         *device
	descriptorPool vk.DescriptorPool
	locks          *lockPool

	swapchain  *swapchain
	generation uint32

	fences         *core.Arena[uint32, vk.Fence]
	semaphores     *core.Arena[uint32, vk.Semaphore]
	commandBuffers *core.Arena[uint32, vk.CommandBuffer]
	buffers        *core.Arena[uint32, *buffer]
	images         *core.Arena[uint32, *image]
	samplers       *core.Arena[uint32, vk.Sampler]
	renderPasses   *core.Arena[uint32, *renderPass]
	framebuffers   *core.Arena[uint32, vk.Framebuffer]
	setLayouts     *core.Arena[uint32, *setLayout]
	sets           *core.Arena[uint32, *descriptorSet]
	shaders        *core.Arena[uint32, vk.ShaderModule]
	pipelines      *core.Arena[uint32, *pipeline]

	initialized bool
}

var _ metadata.RendererBackend = (*Backend)(nil)

func New(p *platform.Platform, config Config) *Backend {
	return &Backend{
		platform:       p,
		config:         config,
		locks:          newLockPool(),
		fences:         core.NewArena[uint32, vk.Fence](8),
		semaphores:     core.NewArena[uint32, vk.Semaphore](8),
		commandBuffers: core.NewArena[uint32, vk.CommandBuffer](8),
		buffers:        core.NewArena[uint32, *buffer](256),
		images:         core.NewArena[uint32, *image](64),
		samplers:       core.NewArena[uint32, vk.Sampler](16),
		renderPasses:   core.NewArena[uint32, *renderPass](4),
		framebuffers:   core.NewArena[uint32, vk.Framebuffer](8),
		setLayouts:     core.NewArena[uint32, *setLayout](32),
		sets:           core.NewArena[uint32, *descriptorSet](256),
		shaders:        core.NewArena[uint32, vk.ShaderModule](32),
		pipelines:      core.NewArena[uint32, *pipeline](32),
	}
}

// Initialize creates the instance, the window surface, the logical device
// and the shared descriptor pool.
func (b *Backend) Initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := b.createInstance(); err != nil {
		return err
	}

	if b.config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.instance, &debugCreateInfo, b.allocator, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		b.debugCallback = dbg
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := b.platform.Window.CreateWindowSurface(b.instance, nil)
	if err != nil {
		err = fmt.Errorf("vulkan surface creation failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	b.surface = vk.SurfaceFromPointer(surface)

	d, err := createDevice(b.instance, b.surface, b.allocator)
	if err != nil {
		return err
	}
	b.device = d

	if err := b.createDescriptorPool(); err != nil {
		return err
	}

	b.initialized = true
	core.LogInfo("Vulkan backend initialized on '%s'.", b.device.name)
	return nil
}

func (b *Backend) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(b.config.ApplicationName),
		PEngineName:        safeString("Prism"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, b.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		createInfo.Flags |= 1
	}
	if b.config.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)

	var layers []string
	if b.config.Validation {
		if !layerAvailable(validationLayer) {
			err := fmt.Errorf("required validation layer is missing: %s", validationLayer)
			core.LogError(err.Error())
			return err
		}
		layers = append(layers, validationLayer)
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, b.allocator, &b.instance)); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(b.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func layerAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

// Shutdown destroys everything the backend still owns, then the device and
// the instance.
func (b *Backend) Shutdown() error {
	if !b.initialized {
		return nil
	}
	if err := b.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown: %s", err.Error())
	}
	b.releaseAll()
	b.destroySwapchain()

	dev := b.device.logical
	if b.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(dev, b.descriptorPool, b.allocator)
		b.descriptorPool = vk.NullDescriptorPool
	}

	core.LogDebug("Destroying Vulkan device...")
	b.device.destroy(b.allocator)

	core.LogDebug("Destroying Vulkan surface...")
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, b.allocator)
		b.surface = vk.NullSurface
	}
	if b.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.instance, b.debugCallback, b.allocator)
		b.debugCallback = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(b.instance, b.allocator)
	b.initialized = false
	return nil
}

// releaseAll destroys objects the caller forgot to release, in reverse
// dependency order.
func (b *Backend) releaseAll() {
	leaked := b.pipelines.Len() + b.shaders.Len() + b.sets.Len() + b.setLayouts.Len() +
		b.framebuffers.Len() + b.renderPasses.Len() + b.samplers.Len() + b.buffers.Len() +
		b.commandBuffers.Len() + b.semaphores.Len() + b.fences.Len()
	if leaked > 0 {
		core.LogWarn("releasing %d device objects still alive at shutdown", leaked)
	}
	b.pipelines.Each(func(h uint32, _ *pipeline) { b.DestroyPipeline(metadata.Pipeline(h)) })
	b.shaders.Each(func(h uint32, _ vk.ShaderModule) { b.DestroyShaderModule(metadata.ShaderModule(h)) })
	b.sets.Each(func(h uint32, _ *descriptorSet) { b.FreeDescriptorSet(metadata.DescriptorSet(h)) })
	b.setLayouts.Each(func(h uint32, _ *setLayout) { b.DestroyDescriptorSetLayout(metadata.DescriptorSetLayout(h)) })
	b.framebuffers.Each(func(h uint32, _ vk.Framebuffer) { b.DestroyFramebuffer(metadata.Framebuffer(h)) })
	b.renderPasses.Each(func(h uint32, _ *renderPass) { b.DestroyRenderPass(metadata.RenderPass(h)) })
	b.samplers.Each(func(h uint32, _ vk.Sampler) { b.DestroySampler(metadata.Sampler(h)) })
	b.images.Each(func(h uint32, img *image) {
		if img.owned {
			b.DestroyImage(metadata.Image(h))
		}
	})
	b.buffers.Each(func(h uint32, _ *buffer) { b.DestroyBuffer(metadata.Buffer(h)) })
	b.commandBuffers.Each(func(h uint32, _ vk.CommandBuffer) { b.FreeCommandBuffer(metadata.CommandBuffer(h)) })
	b.semaphores.Each(func(h uint32, _ vk.Semaphore) { b.DestroySemaphore(metadata.Semaphore(h)) })
	b.fences.Each(func(h uint32, _ vk.Fence) { b.DestroyFence(metadata.Fence(h)) })
}

// SurfaceExtent returns the current extent of the surface. Platforms that
// let the swapchain pick the size report the window framebuffer size.
func (b *Backend) SurfaceExtent() metadata.Extent2D {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(b.device.physical, b.surface, &caps); res != vk.Success {
		core.LogWarn("surface capabilities query failed with %s", ResultString(res))
		return b.platform.FramebufferExtent()
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	if caps.CurrentExtent.Width == ^uint32(0) {
		return b.platform.FramebufferExtent()
	}
	return metadata.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
}

func (b *Backend) DepthFormat() metadata.Format {
	return fromVkFormat(b.device.depthFormat)
}

func (b *Backend) MaxSampleCount() metadata.SampleCount {
	return b.device.maxSamples
}

func (b *Backend) WaitIdle() error {
	return b.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.device.logical))
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
