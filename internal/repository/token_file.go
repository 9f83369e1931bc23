package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/langchou/tronity-connector/internal/api/tronity"
)

// FileTokenStore 没有数据库时把令牌保存在 JSON 文件中
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore 创建文件令牌存储
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// LoadToken 读取令牌
func (s *FileTokenStore) LoadToken(_ context.Context, id string) (*tronity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return nil, err
	}

	token, ok := tokens[id]
	if !ok || token == nil {
		return nil, tronity.ErrTokenNotFound
	}
	return token, nil
}

// SaveToken 保存令牌，保留文件中其他连接器的令牌
func (s *FileTokenStore) SaveToken(_ context.Context, id string, token *tronity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return err
	}
	tokens[id] = token

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}

	// 先写临时文件再重命名
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tokens: %w", err)
	}
	return nil
}

func (s *FileTokenStore) read() (map[string]*tronity.Token, error) {
	tokens := make(map[string]*tronity.Token)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tokens, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if len(data) == 0 {
		return tokens, nil
	}

	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode tokens %s: %w", s.path, err)
	}
	return tokens, nil
}
