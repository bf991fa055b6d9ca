package config

import (
	"errors"
	"fmt"
	"sync"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CatalogManager 负责加载枚举配置文件，并在文件变化时热更新。
type CatalogManager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	catalog   promptdomain.Catalog
	callbacks []func(promptdomain.Catalog)
}

// NewCatalogManager 读取 path 指定的 YAML/JSON 文件，path 为空时只使用内置枚举。
func NewCatalogManager(path string) (*CatalogManager, error) {
	m := &CatalogManager{v: viper.New()}
	defaults := promptdomain.DefaultCatalog()
	m.v.SetDefault("roles", defaults.Roles)
	m.v.SetDefault("default_role", defaults.DefaultRole)
	m.v.SetDefault("education_levels", defaults.EducationLevels)
	m.v.SetDefault("output_formats", defaults.OutputFormats)

	if path == "" {
		m.catalog = defaults
		return m, nil
	}

	m.v.SetConfigFile(path)
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
	}
	catalog, err := m.load()
	if err != nil {
		return nil, err
	}
	m.catalog = catalog
	return m, nil
}

func (m *CatalogManager) load() (promptdomain.Catalog, error) {
	var catalog promptdomain.Catalog
	if err := m.v.Unmarshal(&catalog); err != nil {
		return promptdomain.Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return catalog.Normalize(), nil
}

// Get 返回当前生效的枚举。
func (m *CatalogManager) Get() promptdomain.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// OnChange 注册枚举变更回调。
func (m *CatalogManager) OnChange(fn func(promptdomain.Catalog)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch 监听配置文件变化；未配置文件时不做任何事。
func (m *CatalogManager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(fsnotify.Event) {
		catalog, err := m.load()
		if err != nil {
			return
		}

		m.mu.Lock()
		m.catalog = catalog
		callbacks := make([]func(promptdomain.Catalog), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		for _, fn := range callbacks {
			fn(catalog)
		}
	})
	m.v.WatchConfig()
}
