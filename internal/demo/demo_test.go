package demo

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/protocol"
)

func sampleHeader() Header {
	return Header{
		EngineVersion:   1,
		SubVersion:      0,
		ProtocolVersion: 7,
		DemoType:        TypeServer,
		MapName:         "E1M1",
		Resources: []ResourceRecord{
			{Name: "doom.wad", Type: "iwad", SHA1: "aaaabbbbccccddddeeeeffff0000111122223333"},
		},
	}
}

func TestRecordReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "20260731", 1, 7, "tester")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.AddMap(sampleHeader()); err != nil {
		t.Fatalf("AddMap: %v", err)
	}
	if err := rec.WriteNetworkMessage(1, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteNetworkMessage: %v", err)
	}
	cmd := protocol.Command{Index: 1, WorldIndexSeen: 5, ForwardMove: 100}
	if err := rec.WritePlayerCommand(cmd); err != nil {
		t.Fatalf("WritePlayerCommand: %v", err)
	}
	if err := rec.WriteConsoleCommand(ConsoleCommandFrame{Type: 2, Source: 1, Name: "say", Opts: "hi"}); err != nil {
		t.Fatalf("WriteConsoleCommand: %v", err)
	}
	archivePath, err := rec.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	extractDir := t.TempDir()
	top, err := Extract(archivePath, extractDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	resolved := []config.Resource{{Name: "doom.wad", SHA1: "aaaabbbbccccddddeeeeffff0000111122223333"}}
	player, err := OpenMap(filepath.Join(top, "0"), resolved)
	if err != nil {
		t.Fatalf("OpenMap: %v", err)
	}
	defer player.Close()

	if player.Header.MapName != "E1M1" {
		t.Fatalf("MapName = %q, want E1M1", player.Header.MapName)
	}
	if player.Header.ProtocolVersion != 7 {
		t.Fatalf("ProtocolVersion = %d, want 7", player.Header.ProtocolVersion)
	}

	f1, err := player.Next()
	if err != nil || f1.Kind != FrameNetworkMessage {
		t.Fatalf("frame 1 = %+v, err %v", f1, err)
	}
	if string(f1.NetworkMessage.Bytes) != "\x01\x02\x03" {
		t.Fatalf("network message bytes = %v", f1.NetworkMessage.Bytes)
	}

	f2, err := player.Next()
	if err != nil || f2.Kind != FramePlayerCommand {
		t.Fatalf("frame 2 = %+v, err %v", f2, err)
	}
	if f2.PlayerCommand.ForwardMove != 100 || f2.PlayerCommand.WorldIndexSeen != 5 {
		t.Fatalf("player command = %+v", f2.PlayerCommand)
	}

	f3, err := player.Next()
	if err != nil || f3.Kind != FrameConsoleCommand {
		t.Fatalf("frame 3 = %+v, err %v", f3, err)
	}
	if f3.ConsoleCommand.Name != "say" || f3.ConsoleCommand.Opts != "hi" {
		t.Fatalf("console command = %+v", f3.ConsoleCommand)
	}

	if _, err := player.Next(); err != io.EOF {
		t.Fatalf("expected EOF after last frame, got %v", err)
	}
}

func TestOpenMapRejectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	rec, _ := NewRecorder(dir, "20260731", 1, 7, "tester")
	_ = rec.AddMap(sampleHeader())
	archivePath, _ := rec.Close()

	extractDir := t.TempDir()
	top, err := Extract(archivePath, extractDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	resolved := []config.Resource{{Name: "doom.wad", SHA1: "0000000000000000000000000000000000000"}}
	if _, err := OpenMap(filepath.Join(top, "0"), resolved); err == nil {
		t.Fatal("expected a SHA-1 mismatch to abort OpenMap")
	}
}

func TestCheckpointBeforePicksLatestNotAfterTarget(t *testing.T) {
	dir := t.TempDir()
	rec, _ := NewRecorder(dir, "20260731", 1, 7, "tester")
	_ = rec.AddMap(sampleHeader())
	if err := rec.Checkpoint(10, []byte("save-a"), []byte("png-a")); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := rec.WriteNetworkMessage(1, []byte{9}); err != nil {
		t.Fatalf("WriteNetworkMessage: %v", err)
	}
	if err := rec.Checkpoint(20, []byte("save-b"), []byte("png-b")); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	archivePath, _ := rec.Close()

	extractDir := t.TempDir()
	top, _ := Extract(archivePath, extractDir)
	resolved := []config.Resource{{Name: "doom.wad", SHA1: "aaaabbbbccccddddeeeeffff0000111122223333"}}
	player, err := OpenMap(filepath.Join(top, "0"), resolved)
	if err != nil {
		t.Fatalf("OpenMap: %v", err)
	}
	defer player.Close()

	entry, ok := player.CheckpointBefore(15)
	if !ok || entry.WorldIndex != 10 || entry.SaveFile != "save0.sav" {
		t.Fatalf("CheckpointBefore(15) = %+v, %v, want world_index=10", entry, ok)
	}

	if err := player.SeekTo(entry.Offset); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	f, err := player.Next()
	if err != nil || f.Kind != FrameNetworkMessage || len(f.NetworkMessage.Bytes) != 1 || f.NetworkMessage.Bytes[0] != 9 {
		t.Fatalf("frame after seek = %+v, err %v", f, err)
	}
}
