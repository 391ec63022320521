// internal/storage/backend.go
package storage

import (
	"fmt"
	"strings"
)

// Backend 持久化后端：每个集合是一个完整的 JSON 文档，每次修改整体重写
type Backend interface {
	// LoadCollection decodes the named collection into v. found is false
	// when the collection has never been written.
	LoadCollection(name string, v any) (found bool, err error)
	SaveCollection(name string, v any) error
	DeleteCollection(name string) error
	// ListCollections returns collection names starting with prefix, sorted.
	ListCollections(prefix string) ([]string, error)
	Close() error
}

// Open 根据配置名称创建后端
func Open(kind, dataDir string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		return NewFileStorage(dataDir)
	case "sqlite":
		return NewSQLiteStorage(dataDir)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", kind)
	}
}

// validCollectionName rejects names that could escape the data directory.
func validCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("集合名称不能为空")
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("非法的集合名称: %s", name)
	}
	return nil
}
