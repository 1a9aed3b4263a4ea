package assets

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

type AssetInfo struct {
	Path       string
	Type       resources.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the asset tree once and loads assets by name through
// the loader registered for their type.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[resources.ResourceType]Loader

	mutex sync.RWMutex
}

func NewAssetManager() *AssetManager {
	return &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[resources.ResourceType]Loader),
	}
}

func (am *AssetManager) Initialize(assetsDir string) error {
	am.root = assetsDir

	// Register loaders
	am.registerLoader(resources.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(resources.ResourceTypeImage, &loaders.TextureLoader{})
	am.registerLoader(resources.ResourceTypeMaterial, &loaders.MaterialLoader{})

	return am.Rescan()
}

// Rescan rebuilds the index from the files currently on disk.
func (am *AssetManager) Rescan() error {
	index := make(map[string]AssetInfo)
	err := filepath.WalkDir(am.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		t := determineAssetType(path)
		if t == resources.ResourceTypeNone {
			return nil
		}
		rel, err := filepath.Rel(am.root, path)
		if err != nil {
			return err
		}
		index[filepath.ToSlash(rel)] = AssetInfo{Path: path, Type: t}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to index assets in `%s`: %w", am.root, err)
		core.LogError("%s", err.Error())
		return err
	}

	am.mutex.Lock()
	am.assets = index
	am.mutex.Unlock()
	core.LogDebug("indexed %d asset(s) in `%s`", len(index), am.root)
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// candidates lists the index keys an asset name can resolve to, in order of
// preference.
func candidates(name string, resourceType resources.ResourceType) []string {
	switch resourceType {
	case resources.ResourceTypeShader:
		return []string{"shaders/" + name + ".spv", "shaders/" + name + ".wgsl"}
	case resources.ResourceTypeMaterial:
		return []string{"materials/" + name + ".toml"}
	case resources.ResourceTypeImage:
		return []string{"textures/" + name + ".png", "textures/" + name + ".jpg", "textures/" + name + ".bmp", "textures/" + name + ".tiff"}
	}
	return nil
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(name string, resourceType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	loader, loaderExists := am.loaders[resourceType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	am.mutex.Lock()
	var asset AssetInfo
	var key string
	for _, c := range candidates(name, resourceType) {
		if a, ok := am.assets[c]; ok {
			asset, key = a, c
			break
		}
	}
	if key == "" {
		am.mutex.Unlock()
		err := fmt.Errorf("%s asset not found: %s", resourceType, name)
		core.LogError("%s", err.Error())
		return nil, err
	}
	asset.LastLoaded = time.Now()
	am.assets[key] = asset
	am.mutex.Unlock()

	return loader.Load(asset.Path, params)
}

func (am *AssetManager) UnloadAsset(asset *resources.Resource) error {
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Unload(asset)
}

// Assets returns the index keys of every asset of the given type.
func (am *AssetManager) Assets(resourceType resources.ResourceType) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []string
	for k, a := range am.assets {
		if a.Type == resourceType {
			out = append(out, k)
		}
	}
	return out
}

func determineAssetType(path string) resources.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv", ".wgsl":
		return resources.ResourceTypeShader
	case ".png", ".jpg", ".bmp", ".tiff":
		return resources.ResourceTypeImage
	case ".toml":
		if strings.Contains(filepath.ToSlash(path), "materials/") {
			return resources.ResourceTypeMaterial
		}
	}
	return resources.ResourceTypeNone
}

