package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

// ShaderSystem loads shaders from the asset tree and keeps their SPIR-V by
// name, so a WGSL source is compiled once however many materials use it.
type ShaderSystem struct {
	assetManager *assets.AssetManager

	mu    sync.Mutex
	cache map[string][]byte
}

func NewShaderSystem(am *assets.AssetManager) (*ShaderSystem, error) {
	if am == nil {
		err := fmt.Errorf("func NewShaderSystem - asset manager is required")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &ShaderSystem{
		assetManager: am,
		cache:        make(map[string][]byte),
	}, nil
}

/**
 * @brief Returns the SPIR-V of the named shader, loading it on first use.
 *
 * @param name The shader name relative to the shader directory, without extension.
 * @return The SPIR-V binary; callers must not modify it.
 */
func (ss *ShaderSystem) Acquire(name string) ([]byte, error) {
	ss.mu.Lock()
	code, ok := ss.cache[name]
	ss.mu.Unlock()
	if ok {
		return code, nil
	}

	res, err := ss.assetManager.LoadAsset(name, resources.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	data, ok := res.Data.(*resources.ShaderResourceData)
	if !ok {
		return nil, fmt.Errorf("shader `%s` loaded as %T", name, res.Data)
	}
	ss.mu.Lock()
	ss.cache[name] = data.Code
	ss.mu.Unlock()
	core.LogDebug("shader `%s` loaded (%d bytes of SPIR-V)", name, len(data.Code))
	return data.Code, nil
}

// Forget drops a cached shader so the next Acquire reads it from disk again.
func (ss *ShaderSystem) Forget(name string) {
	ss.mu.Lock()
	delete(ss.cache, name)
	ss.mu.Unlock()
}

func (ss *ShaderSystem) Shutdown() error {
	ss.mu.Lock()
	clear(ss.cache)
	ss.mu.Unlock()
	return nil
}
