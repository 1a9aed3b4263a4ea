package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const portabilitySubset = "VK_KHR_portability_subset"

type device struct {
	name     string
	physical vk.PhysicalDevice
	logical  vk.Device

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue

	commandPool vk.CommandPool

	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties

	depthFormat   vk.Format
	maxSamples    metadata.SampleCount
	maxAnisotropy float32
}

/** @brief A physical device that passed the requirements, with its score. */
type candidate struct {
	physical vk.PhysicalDevice
	graphics uint32
	present  uint32
	score    int
	portable bool
}

func createDevice(instance vk.Instance, surface vk.Surface, allocator *vk.AllocationCallbacks) (*device, error) {
	c, err := selectPhysicalDevice(instance, surface)
	if err != nil {
		return nil, err
	}
	d := &device{
		physical:           c.physical,
		graphicsQueueIndex: c.graphics,
		presentQueueIndex:  c.present,
	}
	vk.GetPhysicalDeviceProperties(d.physical, &d.properties)
	d.properties.Deref()
	d.properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(d.physical, &d.features)
	d.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()
	d.name = cString(d.properties.DeviceName[:])

	core.LogInfo("Selected device: '%s'.", d.name)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(d.properties.ApiVersion).Major(),
		vk.Version(d.properties.ApiVersion).Minor(),
		vk.Version(d.properties.ApiVersion).Patch(),
	)

	families := []uint32{d.graphicsQueueIndex}
	if d.presentQueueIndex != d.graphicsQueueIndex {
		families = append(families, d.presentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{}
	if d.features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
		d.maxAnisotropy = d.properties.Limits.MaxSamplerAnisotropy
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if c.portable {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if err := resultError("vkCreateDevice", vk.CreateDevice(d.physical, &deviceCreateInfo, allocator, &d.logical)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.logical, d.graphicsQueueIndex, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, d.presentQueueIndex, 0, &d.presentQueue)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(d.logical, &poolCreateInfo, allocator, &d.commandPool)); err != nil {
		core.LogError(err.Error())
		vk.DestroyDevice(d.logical, allocator)
		return nil, err
	}

	if !d.detectDepthFormat() {
		err := fmt.Errorf("no supported depth format on '%s'", d.name)
		core.LogError(err.Error())
		d.destroy(allocator)
		return nil, err
	}
	d.maxSamples = d.detectMaxSamples()
	core.LogDebug("depth format %d, max samples %d", d.depthFormat, d.maxSamples)

	return d, nil
}

func (d *device) destroy(allocator *vk.AllocationCallbacks) {
	if d.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.logical, d.commandPool, allocator)
		d.commandPool = vk.NullCommandPool
	}
	if d.logical != nil {
		vk.DestroyDevice(d.logical, allocator)
		d.logical = nil
	}
	d.graphicsQueue = nil
	d.presentQueue = nil
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*candidate, error) {
	var count uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return nil, err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, physicalDevices)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	var best *candidate
	for _, pd := range physicalDevices {
		c, ok := evaluateDevice(pd, surface)
		if !ok {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return nil, err
	}
	return best, nil
}

// evaluateDevice checks that pd can draw and present to surface. Discrete
// GPUs score higher than integrated ones.
func evaluateDevice(pd vk.PhysicalDevice, surface vk.Surface) (*candidate, bool) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	name := cString(properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	graphics, present := -1, -1
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && graphics < 0 {
			graphics = i
		}
		var supported vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supported); res != vk.Success {
			continue
		}
		if supported == vk.True {
			// Prefer a family that can do both.
			if present < 0 || i == graphics {
				present = i
			}
		}
	}
	if graphics < 0 || present < 0 {
		core.LogInfo("Device '%s' lacks graphics or present queues, skipping.", name)
		return nil, false
	}

	extensions, err := deviceExtensions(pd)
	if err != nil {
		return nil, false
	}
	if !extensions[vk.KhrSwapchainExtensionName] {
		core.LogInfo("Device '%s' does not support %s, skipping.", name, vk.KhrSwapchainExtensionName)
		return nil, false
	}

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil)
	if formatCount == 0 || modeCount == 0 {
		core.LogInfo("Device '%s' has no swapchain support for this surface, skipping.", name)
		return nil, false
	}

	c := &candidate{
		physical: pd,
		graphics: uint32(graphics),
		present:  uint32(present),
		portable: extensions[portabilitySubset],
	}
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		c.score = 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		c.score = 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		c.score = 1
	}
	if graphics == present {
		c.score++
	}
	return c, true
}

func deviceExtensions(pd vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)); err != nil {
		return nil, err
	}
	available := make([]vk.ExtensionProperties, count)
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, available)); err != nil {
		return nil, err
	}
	out := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		out[cString(available[i].ExtensionName[:])] = true
	}
	return out, nil
}

func (d *device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, f, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			d.depthFormat = f
			return true
		}
	}
	return false
}

func (d *device) detectMaxSamples() metadata.SampleCount {
	counts := d.properties.Limits.FramebufferColorSampleCounts & d.properties.Limits.FramebufferDepthSampleCounts
	for _, s := range []metadata.SampleCount{metadata.SampleCount8, metadata.SampleCount4, metadata.SampleCount2} {
		if counts&vk.SampleCountFlags(toVkSamples(s)) != 0 {
			return s
		}
	}
	return metadata.SampleCount1
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every property in flags.
func (d *device) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&flags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches filter %#x with properties %#x: %w", typeFilter, flags, core.ErrOutOfDeviceMemory)
}
