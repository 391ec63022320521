// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const collectionExt = ".json"

// FileStorage 提供文件存储服务：每个集合对应 BaseDir 下的一个 JSON 文件
type FileStorage struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map

	// 读缓存，写入时失效
	cache      map[string][]byte
	cacheMutex sync.RWMutex
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &FileStorage{
		BaseDir: baseDir,
		cache:   make(map[string][]byte),
	}, nil
}

func (s *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (s *FileStorage) pathFor(name string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(name)+collectionExt)
}

// SaveCollection 原子性写入集合
func (s *FileStorage) SaveCollection(name string, v any) error {
	if err := validCollectionName(name); err != nil {
		return err
	}

	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	fullPath := s.pathFor(name)
	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}

	s.cacheMutex.Lock()
	s.cache[fullPath] = content
	s.cacheMutex.Unlock()

	return nil
}

// LoadCollection 读取并解析集合
func (s *FileStorage) LoadCollection(name string, v any) (bool, error) {
	if err := validCollectionName(name); err != nil {
		return false, err
	}

	fullPath := s.pathFor(name)

	s.cacheMutex.RLock()
	content, cached := s.cache[fullPath]
	s.cacheMutex.RUnlock()

	if !cached {
		lock := s.getFileLock(fullPath)
		lock.RLock()
		data, err := os.ReadFile(fullPath)
		lock.RUnlock()

		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("读取文件失败: %w", err)
		}
		content = data

		s.cacheMutex.Lock()
		s.cache[fullPath] = content
		s.cacheMutex.Unlock()
	}

	if err := json.Unmarshal(content, v); err != nil {
		return true, fmt.Errorf("解析JSON失败: %w", err)
	}
	return true, nil
}

// DeleteCollection 删除集合文件，不存在时不报错
func (s *FileStorage) DeleteCollection(name string) error {
	if err := validCollectionName(name); err != nil {
		return err
	}

	fullPath := s.pathFor(name)
	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	s.cacheMutex.Lock()
	delete(s.cache, fullPath)
	s.cacheMutex.Unlock()
	return nil
}

// ListCollections 列出以 prefix 开头的集合
func (s *FileStorage) ListCollections(prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), collectionExt) {
			return nil
		}
		rel, err := filepath.Rel(s.BaseDir, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), collectionExt)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close 清空缓存
func (s *FileStorage) Close() error {
	s.cacheMutex.Lock()
	s.cache = make(map[string][]byte)
	s.cacheMutex.Unlock()
	return nil
}
