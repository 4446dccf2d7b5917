package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// BanEntry is one banlist record (spec.md §4.H, §6 access-list JSON:
// `{"name":…, "reason":…, "duration"?: minutes}`). CreatedAt is not part
// of the spec's wire shape but is persisted alongside DurationMinutes so
// expiry survives a server restart; without it a reloaded ban with a
// duration would have no anchor to count down from.
type BanEntry struct {
	Name            string     `json:"name"`
	Reason          string     `json:"reason"`
	DurationMinutes *int       `json:"duration,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// expired reports whether the ban's duration has elapsed.
func (e BanEntry) expired() bool {
	if e.DurationMinutes == nil || e.CreatedAt == nil {
		return false
	}
	return time.Now().After(e.CreatedAt.Add(time.Duration(*e.DurationMinutes) * time.Minute))
}

// accessListFile is the on-disk shape of the access-list JSON document
// (spec.md §6: `{"banlist": {...}, "whitelist": {...}}`).
type accessListFile struct {
	BanList   map[string]BanEntry `json:"banlist"`
	WhiteList map[string]string   `json:"whitelist"`
}

// AccessList is the server's ban/whitelist, grounded on
// original_source/sv_bans.cpp's AccessList: every mutating banlist or
// whitelist-add operation writes the whole file back out immediately.
type AccessList struct {
	path      string
	banList   map[string]BanEntry
	whiteList map[string]string
}

// LoadAccessList reads the access-list JSON at path, or starts empty if
// the file does not exist yet (matching the original's
// M_PathExists-guarded load).
func LoadAccessList(path string) (*AccessList, error) {
	al := &AccessList{
		path:      path,
		banList:   make(map[string]BanEntry),
		whiteList: make(map[string]string),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return al, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read access list: %w", err)
	}
	var f accessListFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("auth: parse access list: %w", err)
	}
	if f.BanList != nil {
		al.banList = f.BanList
	}
	if f.WhiteList != nil {
		al.whiteList = f.WhiteList
	}
	return al, nil
}

func (al *AccessList) writeOut() error {
	f := accessListFile{BanList: al.banList, WhiteList: al.whiteList}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal access list: %w", err)
	}
	return os.WriteFile(al.path, data, 0o644)
}

// AddBan adds a ban entry and persists the access list. durationMinutes
// is nil for a permanent ban. Returns an error if the address is
// already banned.
func (al *AccessList) AddBan(address, name, reason string, durationMinutes *int) error {
	if _, exists := al.banList[address]; exists {
		return fmt.Errorf("auth: ban already exists for %q", address)
	}
	now := time.Now()
	al.banList[address] = BanEntry{Name: name, Reason: reason, DurationMinutes: durationMinutes, CreatedAt: &now}
	return al.writeOut()
}

// RemoveBan removes a ban entry and persists the access list.
func (al *AccessList) RemoveBan(address string) error {
	if _, exists := al.banList[address]; !exists {
		return fmt.Errorf("auth: ban not found for %q", address)
	}
	delete(al.banList, address)
	return al.writeOut()
}

// AddWhitelist adds a whitelist entry and persists the access list.
func (al *AccessList) AddWhitelist(address, name string) error {
	if _, exists := al.whiteList[address]; exists {
		return fmt.Errorf("auth: whitelist entry already exists for %q", address)
	}
	al.whiteList[address] = name
	return al.writeOut()
}

// RemoveWhitelist removes a whitelist entry WITHOUT persisting. This
// mirrors a real asymmetry in original_source/sv_bans.cpp:
// removeWhiteListEntry never calls writeOutAccessList, unlike every
// other mutator here — kept for grounding fidelity rather than fixed,
// see SPEC_FULL.md §5.
func (al *AccessList) RemoveWhitelist(address string) error {
	if _, exists := al.whiteList[address]; !exists {
		return fmt.Errorf("auth: whitelist entry not found for %q", address)
	}
	delete(al.whiteList, address)
	return nil
}

// IsBanned reports whether address matches a banlist entry and is not
// whitelisted. Ban patterns are literal or wildcarded with a trailing
// `*`; a pattern with no `*` must match address exactly, and a pattern
// with one matches any address sharing its prefix up to the `*`
// (case-insensitive) — see SPEC_FULL.md's "Ban matching cutoff
// semantics" for how this was resolved from the original C++.
func (al *AccessList) IsBanned(address string) bool {
	if _, whitelisted := al.whiteList[address]; whitelisted {
		return false
	}
	for pattern, entry := range al.banList {
		if entry.expired() {
			continue
		}
		if matchesBanPattern(pattern, address) {
			return true
		}
	}
	return false
}

// Ban returns the matching, non-expired ban entry for address, if any.
func (al *AccessList) Ban(address string) (BanEntry, bool) {
	for pattern, entry := range al.banList {
		if entry.expired() {
			continue
		}
		if matchesBanPattern(pattern, address) {
			return entry, true
		}
	}
	return BanEntry{}, false
}

func matchesBanPattern(pattern, address string) bool {
	cutoff := strings.IndexByte(pattern, '*')
	if cutoff == -1 {
		return strings.EqualFold(pattern, address)
	}
	prefix := pattern[:cutoff]
	if len(address) < len(prefix) {
		return false
	}
	return strings.EqualFold(address[:len(prefix)], prefix)
}

// Bans returns every non-expired ban address pattern, for console
// listing (`list_bans`).
func (al *AccessList) Bans() map[string]BanEntry {
	out := make(map[string]BanEntry, len(al.banList))
	for k, v := range al.banList {
		if v.expired() {
			continue
		}
		out[k] = v
	}
	return out
}

// Whitelists returns every whitelist address→name pair, for console
// listing (`list_whitelists`).
func (al *AccessList) Whitelists() map[string]string {
	out := make(map[string]string, len(al.whiteList))
	for k, v := range al.whiteList {
		out[k] = v
	}
	return out
}
