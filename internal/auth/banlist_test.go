package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWildcardBanMatchesPrefixNotNeighboringSubnet(t *testing.T) {
	al, err := LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	if err != nil {
		t.Fatalf("LoadAccessList: %v", err)
	}
	if err := al.AddBan("1.2.3.*", "", "testing", nil); err != nil {
		t.Fatalf("AddBan: %v", err)
	}

	cases := map[string]bool{
		"1.2.3.9":   true,
		"1.2.3.250": true,
		"1.2.4.1":   false,
	}
	for addr, want := range cases {
		if got := al.IsBanned(addr); got != want {
			t.Errorf("IsBanned(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestExactBanRequiresFullMatch(t *testing.T) {
	al, _ := LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	if err := al.AddBan("10.0.0.1", "", "testing", nil); err != nil {
		t.Fatalf("AddBan: %v", err)
	}
	if al.IsBanned("10.0.0.12") {
		t.Fatal("exact ban pattern must not prefix-match a longer address")
	}
	if !al.IsBanned("10.0.0.1") {
		t.Fatal("exact ban pattern must match the identical address")
	}
}

func TestWhitelistOverridesBan(t *testing.T) {
	al, _ := LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	al.AddBan("1.2.3.*", "", "testing", nil)
	al.AddWhitelist("1.2.3.9", "trusted")
	if al.IsBanned("1.2.3.9") {
		t.Fatal("whitelisted address must not be reported banned")
	}
	if !al.IsBanned("1.2.3.10") {
		t.Fatal("non-whitelisted address under the same ban should stay banned")
	}
}

func TestExpiredBanDoesNotMatch(t *testing.T) {
	al, _ := LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	negative := -60
	al.AddBan("5.5.5.5", "", "testing", &negative)
	if al.IsBanned("5.5.5.5") {
		t.Fatal("expired ban must not match")
	}
}

func TestAddBanPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.json")
	al, _ := LoadAccessList(path)
	if err := al.AddBan("2.2.2.2", "grief", "testing", nil); err != nil {
		t.Fatalf("AddBan: %v", err)
	}

	reloaded, err := LoadAccessList(path)
	if err != nil {
		t.Fatalf("LoadAccessList: %v", err)
	}
	if !reloaded.IsBanned("2.2.2.2") {
		t.Fatal("ban should survive a reload from disk")
	}
}

func TestRemoveWhitelistDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.json")
	al, _ := LoadAccessList(path)
	if err := al.AddWhitelist("3.3.3.3", "trusted"); err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	if err := al.RemoveWhitelist("3.3.3.3"); err != nil {
		t.Fatalf("RemoveWhitelist: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	reloaded, err := LoadAccessList(path)
	if err != nil {
		t.Fatalf("LoadAccessList: %v", err)
	}
	if _, stillThere := reloaded.whiteList["3.3.3.3"]; !stillThere {
		t.Fatalf("expected RemoveWhitelist to NOT persist (grounded on sv_bans.cpp quirk); on-disk contents: %s", data)
	}
}
