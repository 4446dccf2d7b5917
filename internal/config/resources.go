package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Resource is a resolved, hashed resource record (spec.md §3).
type Resource struct {
	Name string
	Path string
	Type ResourceType
	SHA1 string // 40-char hex
}

// acceptedSchemes is the closed set of URL schemes the loader will
// fetch a resource from (spec.md §6).
var acceptedSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "gopher": true,
	"scp": true, "sftp": true, "tftp": true, "telnet": true,
	"dict": true, "file": true,
}

// Resolver finds resource files on disk (trying alternates), hashes
// them, and fetches missing PWADs over HTTP when a wad_repository is
// configured.
type Resolver struct {
	SearchDirs   []string
	CacheDir     string
	WADRepository string
	HTTPClient   *http.Client
}

// NewResolver returns a Resolver with sane defaults.
func NewResolver(searchDirs []string, cacheDir, wadRepository string) *Resolver {
	return &Resolver{
		SearchDirs:    searchDirs,
		CacheDir:      cacheDir,
		WADRepository: wadRepository,
		HTTPClient:    &http.Client{},
	}
}

// Resolve locates, optionally fetches, and hashes every resource in
// specs. IWAD and DEH resources are never fetched over the network
// (spec.md §4.C); only PWADs fall back to wad_repository.
func (r *Resolver) Resolve(specs []ResourceSpec) ([]Resource, error) {
	out := make([]Resource, 0, len(specs))
	for _, spec := range specs {
		res, err := r.resolveOne(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Resolver) resolveOne(spec ResourceSpec) (Resource, error) {
	candidates := append([]string{spec.Name}, spec.Alternates...)

	for _, name := range candidates {
		if path := r.findLocal(name); path != "" {
			return r.hashed(spec, path)
		}
	}

	if spec.Type == ResourcePWAD && r.WADRepository != "" {
		path, err := r.fetch(spec.Name)
		if err != nil {
			return Resource{}, fmt.Errorf("config: fetch resource %q: %w", spec.Name, err)
		}
		return r.hashed(spec, path)
	}

	return Resource{}, fmt.Errorf("config: resource %q not found locally (type %s is never fetched)", spec.Name, spec.Type)
}

func (r *Resolver) findLocal(name string) string {
	for _, dir := range r.SearchDirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (r *Resolver) hashed(spec ResourceSpec, path string) (Resource, error) {
	sum, err := hashFile(path)
	if err != nil {
		return Resource{}, fmt.Errorf("config: hash %s: %w", path, err)
	}
	return Resource{Name: spec.Name, Path: path, Type: spec.Type, SHA1: sum}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash fails startup if a resource's computed SHA-1 does not
// match its declared value (spec.md §8 "Hash verification").
func VerifyHash(res Resource, declared string) error {
	if declared == "" {
		return nil
	}
	if res.SHA1 != declared {
		return fmt.Errorf("config: resource %q hash mismatch: computed %s, declared %s", res.Name, res.SHA1, declared)
	}
	return nil
}

// fetch downloads name from WADRepository into CacheDir, rejecting any
// URL scheme outside the accepted set (spec.md §6).
func (r *Resolver) fetch(name string) (string, error) {
	fetchURL := r.WADRepository + "/" + name
	u, err := url.Parse(fetchURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if !acceptedSchemes[u.Scheme] {
		return "", fmt.Errorf("invalid url: scheme %q not accepted", u.Scheme)
	}

	if err := os.MkdirAll(r.CacheDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(r.CacheDir, name)

	resp, err := r.HTTPClient.Get(fetchURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", fetchURL, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	return dest, nil
}
