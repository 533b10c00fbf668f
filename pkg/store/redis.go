// Package store persists the moderation lists and the audit trail in
// Redis. Reads that sit on the hot path (bypass checks) are served from an
// in-memory snapshot so gameplay handling never waits on the network.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/check"
)

const (
	keyBypass  = "cheatercheck:bypass"
	keyOnStart = "cheatercheck:commands:onstart"
	keyOnStop  = "cheatercheck:commands:onstop"
	keyOnQuit  = "cheatercheck:commands:onquit"
	keyAudit   = "cheatercheck:audit"

	// auditCap bounds the audit list length in Redis.
	auditCap = 1000
)

// RedisOptions configures the connection.
type RedisOptions struct {
	Host       string
	Port       string
	Password   string
	MaxRetries int
}

// InitRedisClient connects to Redis, retrying with exponential backoff.
func InitRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Host + ":" + opts.Port,
		Password:     opts.Password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	operation := func() error {
		_, err := client.Ping(ctx).Result()
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s:%s: %w", opts.Host, opts.Port, err)
	}

	logrus.Infof("connected to Redis at %s:%s", opts.Host, opts.Port)
	return client, nil
}

// Store implements the persisted moderation lists backed by Redis.
type Store struct {
	client *redis.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	bypass  map[string]struct{}
	onStart []string
	onStop  []string
	onQuit  []string
}

func New(client *redis.Client, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		client: client,
		logger: logger,
		bypass: make(map[string]struct{}),
	}
}

// Sync loads the bypass list and hook commands into the in-memory
// snapshot. Call it at startup and whenever an external change to Redis
// needs picking up.
func (s *Store) Sync(ctx context.Context) error {
	names, err := s.client.SMembers(ctx, keyBypass).Result()
	if err != nil {
		return fmt.Errorf("load bypass list: %w", err)
	}
	lists := map[string]*[]string{keyOnStart: {}, keyOnStop: {}, keyOnQuit: {}}
	for key, dst := range lists {
		cmds, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		*dst = cmds
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bypass = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.bypass[strings.ToLower(n)] = struct{}{}
	}
	s.onStart = *lists[keyOnStart]
	s.onStop = *lists[keyOnStop]
	s.onQuit = *lists[keyOnQuit]

	s.logger.WithFields(logrus.Fields{
		"bypass":   len(s.bypass),
		"on_start": len(s.onStart),
		"on_stop":  len(s.onStop),
		"on_quit":  len(s.onQuit),
	}).Info("moderation lists loaded")
	return nil
}

// IsBypassed reports whether the named player is exempt from checks.
func (s *Store) IsBypassed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bypass[strings.ToLower(name)]
	return ok
}

// AddBypass puts a player on the bypass list.
func (s *Store) AddBypass(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	if err := s.client.SAdd(ctx, keyBypass, name).Err(); err != nil {
		return fmt.Errorf("add bypass: %w", err)
	}
	s.mu.Lock()
	s.bypass[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

// RemoveBypass takes a player off the bypass list, reporting whether the
// player was on it.
func (s *Store) RemoveBypass(ctx context.Context, name string) (bool, error) {
	name = strings.ToLower(name)
	removed, err := s.client.SRem(ctx, keyBypass, name).Result()
	if err != nil {
		return false, fmt.Errorf("remove bypass: %w", err)
	}
	s.mu.Lock()
	delete(s.bypass, name)
	s.mu.Unlock()
	return removed > 0, nil
}

// BypassList returns the sorted bypass list from the snapshot.
func (s *Store) BypassList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bypass))
	for n := range s.bypass {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Store) OnStartCommands() []string { return s.copyList(&s.onStart) }
func (s *Store) OnStopCommands() []string  { return s.copyList(&s.onStop) }
func (s *Store) OnQuitCommands() []string  { return s.copyList(&s.onQuit) }

func (s *Store) copyList(src *[]string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(*src))
	copy(out, *src)
	return out
}

// SetHookCommands replaces one of the command hook lists.
func (s *Store) SetHookCommands(ctx context.Context, hook string, cmds []string) error {
	key, dst, err := s.hookSlot(hook)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(cmds) > 0 {
		args := make([]interface{}, len(cmds))
		for i, c := range cmds {
			args[i] = c
		}
		pipe.RPush(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store %s commands: %w", hook, err)
	}
	s.mu.Lock()
	*dst = append([]string(nil), cmds...)
	s.mu.Unlock()
	return nil
}

func (s *Store) hookSlot(hook string) (string, *[]string, error) {
	switch hook {
	case "onstart":
		return keyOnStart, &s.onStart, nil
	case "onstop":
		return keyOnStop, &s.onStop, nil
	case "onquit":
		return keyOnQuit, &s.onQuit, nil
	default:
		return "", nil, fmt.Errorf("unknown hook %q", hook)
	}
}

// RecordAudit appends an entry to the audit trail. The write happens off
// the calling goroutine so the gameplay loop never blocks on Redis.
func (s *Store) RecordAudit(e check.AuditEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.writeAudit(ctx, e); err != nil {
			s.logger.WithError(err).Error("record audit entry")
		}
	}()
}

func (s *Store) writeAudit(ctx context.Context, e check.AuditEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyAudit, data)
	pipe.LTrim(ctx, keyAudit, 0, auditCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns up to n most recent audit entries, newest first.
func (s *Store) RecentAudit(ctx context.Context, n int) ([]check.AuditEntry, error) {
	if n <= 0 || n > auditCap {
		n = auditCap
	}
	raw, err := s.client.LRange(ctx, keyAudit, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	out := make([]check.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var e check.AuditEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.WithError(err).Warn("skipping malformed audit entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
