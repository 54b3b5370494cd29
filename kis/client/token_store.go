package client

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/kistrade/kis/types"
	"github.com/betbot/kistrade/pkg/cache"
	"github.com/betbot/kistrade/pkg/config"
	"github.com/betbot/kistrade/pkg/persistence"
	"github.com/betbot/kistrade/pkg/secretstore"
)

// ErrTokenNotFound 槽位为空
var ErrTokenNotFound = errors.New("kis: token slot empty")

// DefaultBadgerTokenKey badger 中的槽位 key
const DefaultBadgerTokenKey = "kis/token"

// DefaultTokenCacheTTL 进程内缓存令牌的最长时间（同时不超过令牌剩余有效期）
const DefaultTokenCacheTTL = 10 * time.Minute

// TokenStore 令牌槽位：每个用户一个，跨进程共享，刷新时整体覆盖
type TokenStore interface {
	Load() (types.Token, error)
	Save(tok types.Token) error
	Delete() error
}

// FileTokenStore JSON 文件槽位，原子替换写入，权限 0600
type FileTokenStore struct {
	file *persistence.JSONFile
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{file: persistence.NewJSONFile(path)}
}

func (s *FileTokenStore) Path() string { return s.file.Path() }

func (s *FileTokenStore) Load() (types.Token, error) {
	var tok types.Token
	if err := s.file.Load(&tok); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return types.Token{}, ErrTokenNotFound
		}
		return types.Token{}, err
	}
	if tok.Value == "" {
		return types.Token{}, ErrTokenNotFound
	}
	return tok.Normalize(), nil
}

func (s *FileTokenStore) Save(tok types.Token) error {
	return s.file.Save(tok)
}

func (s *FileTokenStore) Delete() error {
	return s.file.Remove()
}

// MemoryTokenStore 进程内槽位（测试与一次性调用）
type MemoryTokenStore struct {
	tok   types.Token
	saved bool
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (types.Token, error) {
	if !s.saved {
		return types.Token{}, ErrTokenNotFound
	}
	return s.tok.Normalize(), nil
}

func (s *MemoryTokenStore) Save(tok types.Token) error {
	s.tok = tok
	s.saved = true
	return nil
}

func (s *MemoryTokenStore) Delete() error {
	s.tok = types.Token{}
	s.saved = false
	return nil
}

// BadgerTokenStore 加密的 badger 槽位，值为与文件槽位相同的 JSON
type BadgerTokenStore struct {
	store *secretstore.Store
	key   string
}

func NewBadgerTokenStore(store *secretstore.Store, key string) *BadgerTokenStore {
	if key == "" {
		key = DefaultBadgerTokenKey
	}
	return &BadgerTokenStore{store: store, key: key}
}

func (s *BadgerTokenStore) Load() (types.Token, error) {
	raw, found, err := s.store.GetString(s.key)
	if err != nil {
		return types.Token{}, err
	}
	if !found || raw == "" {
		return types.Token{}, ErrTokenNotFound
	}
	var tok types.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return types.Token{}, errors.Wrap(err, "kis: decode token slot")
	}
	if tok.Value == "" {
		return types.Token{}, ErrTokenNotFound
	}
	return tok.Normalize(), nil
}

func (s *BadgerTokenStore) Save(tok types.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "kis: encode token slot")
	}
	return s.store.SetString(s.key, string(data))
}

func (s *BadgerTokenStore) Delete() error {
	return s.store.Delete(s.key)
}

// CachedTokenStore 在底层槽位前加一层进程内缓存，缓存时间不超过令牌剩余有效期
type CachedTokenStore struct {
	next  TokenStore
	cache *cache.InMemoryCache[string, types.Token]
	ttl   time.Duration
	now   func() time.Time
}

const cachedTokenKey = "token"

func NewCachedTokenStore(next TokenStore, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		next:  next,
		cache: cache.NewInMemoryCache[string, types.Token](ttl),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock 替换时间源，与令牌有效期判断保持一致
func (s *CachedTokenStore) WithClock(now func() time.Time) *CachedTokenStore {
	if now != nil {
		s.now = now
		s.cache.WithClock(now)
	}
	return s
}

// Next 被缓存的底层槽位
func (s *CachedTokenStore) Next() TokenStore {
	return s.next
}

func (s *CachedTokenStore) Load() (types.Token, error) {
	if tok, ok := s.cache.Get(cachedTokenKey); ok {
		return tok, nil
	}
	tok, err := s.next.Load()
	if err != nil {
		return tok, err
	}
	s.remember(tok)
	return tok, nil
}

func (s *CachedTokenStore) Save(tok types.Token) error {
	if err := s.next.Save(tok); err != nil {
		s.cache.Delete(cachedTokenKey)
		return err
	}
	s.remember(tok)
	return nil
}

func (s *CachedTokenStore) Delete() error {
	s.cache.Delete(cachedTokenKey)
	return s.next.Delete()
}

func (s *CachedTokenStore) remember(tok types.Token) {
	ttl := s.ttl
	if !tok.ExpiresAt.IsZero() {
		if left := tok.ExpiresAt.Sub(s.now()); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		s.cache.Delete(cachedTokenKey)
		return
	}
	s.cache.Set(cachedTokenKey, tok, ttl)
}

// OpenTokenStore 按配置打开槽位，外层套一层进程内缓存。
// 返回的 closer 在 badger 模式下关闭数据库，其余为空操作。
func OpenTokenStore(cfg *config.Config) (TokenStore, func() error, error) {
	store, closeFn, err := openSlot(cfg)
	if err != nil {
		return nil, closeFn, err
	}
	return NewCachedTokenStore(store, DefaultTokenCacheTTL), closeFn, nil
}

func openSlot(cfg *config.Config) (TokenStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.TokenStore {
	case config.TokenStoreBadger:
		key, err := secretstore.ParseKey(cfg.SecretKey)
		if err != nil {
			return nil, noop, errors.Wrap(err, "kis: secret_key")
		}
		store, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.SecretDBPath,
			EncryptionKey: key,
		})
		if err != nil {
			return nil, noop, err
		}
		return NewBadgerTokenStore(store, DefaultBadgerTokenKey), store.Close, nil
	default:
		path := cfg.TokenPath
		if path == "" {
			expanded, err := config.ExpandPath(config.DefaultTokenPath)
			if err != nil {
				return nil, noop, err
			}
			path = expanded
		}
		return NewFileTokenStore(path), noop, nil
	}
}
