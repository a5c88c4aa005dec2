package store

import (
	"fmt"
	"slices"
	"sync"
)

// BanStore is the set of banned IP addresses, persisted as
// {"IPs": [...]}. It is read from connection-accepting goroutines, so it
// guards itself.
type BanStore struct {
	mu   sync.RWMutex
	path string
	ips  []string
}

type banFile struct {
	IPs []string `json:"IPs"`
}

// OpenBans loads the ban file at path. An empty path keeps bans in memory.
func OpenBans(path string) (*BanStore, error) {
	s := &BanStore{path: path}
	if path == "" {
		return s, nil
	}
	var f banFile
	if err := readJSON(path, &f); err != nil {
		return nil, fmt.Errorf("store: load bans: %w", err)
	}
	s.ips = f.IPs
	return s, nil
}

// IsBanned reports whether ip is banned.
func (s *BanStore) IsBanned(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ips, ip)
}

// Ban adds ip. It returns false if the ip was already banned.
func (s *BanStore) Ban(ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.ips, ip) {
		return false, nil
	}
	s.ips = append(s.ips, ip)
	return true, s.saveLocked()
}

// Unban removes ip. It returns false if the ip was not banned.
func (s *BanStore) Unban(ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.ips, ip)
	if i < 0 {
		return false, nil
	}
	s.ips = slices.Delete(s.ips, i, i+1)
	return true, s.saveLocked()
}

// List returns the banned IPs in ban order.
func (s *BanStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ips)
}

func (s *BanStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	ips := s.ips
	if ips == nil {
		ips = []string{}
	}
	if err := writeJSON(s.path, banFile{IPs: ips}); err != nil {
		return fmt.Errorf("store: save bans: %w", err)
	}
	return nil
}
