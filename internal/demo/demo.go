// Package demo implements spec.md §4.L: recording and replaying a
// network session to/from a directory that gets zipped into a `.ecd`
// archive at close. The binary header and the frame tag order
// (network_message, player_command, console_command, with a sentinel
// ending the header) are lifted directly from
// original_source/source/cs_demo.h's demo_header_t and demo_marker_t,
// re-expressed with internal/protocol's Writer/Reader little-endian
// codec instead of a packed C struct. Checkpoint bookkeeping (toc.json,
// save+screenshot pairs) is grounded on the same file's
// CS_AddNewMapToDemo / CS_UpdateDemoLength bookkeeping.
package demo

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/protocol"
)

// Type distinguishes a demo recorded from the client's or the server's
// point of view (cs_demo.h's demo_type_t).
type Type int32

const (
	TypeClient Type = iota
	TypeServer
)

// FrameKind tags each record in demodata.bin's body. Values match
// cs_demo.h's demo_marker_t so a byte-level diff against the original
// stream shape stays meaningful.
type FrameKind uint8

const (
	FrameHeaderEnd FrameKind = iota
	FrameNetworkMessage
	FramePlayerCommand
	FrameConsoleCommand
)

// ResourceRecord is one header resource entry: {name_length, name,
// type, sha1_hex} (spec.md §4.L).
type ResourceRecord struct {
	Name string
	Type string
	SHA1 string
}

// Header is demodata.bin's fixed preamble.
type Header struct {
	EngineVersion        uint32
	SubVersion           uint32
	ProtocolVersion      uint32
	DemoType             Type
	SettingsSnapshot     []byte // opaque JSON blob of clientserver_settings_t equivalent
	LocalOptionsSnapshot []byte
	Timestamp            int64 // unix seconds
	MapName              string
	ConsolePlayerIndex   int32
	Resources            []ResourceRecord
}

const maxMapNameLen = 9

func (h Header) marshal() []byte {
	w := protocol.NewWriter(256 + len(h.SettingsSnapshot) + len(h.LocalOptionsSnapshot))
	w.U32(h.EngineVersion)
	w.U32(h.SubVersion)
	w.U32(h.ProtocolVersion)
	w.I32(int32(h.DemoType))
	w.Bytes32(h.SettingsSnapshot)
	w.Bytes32(h.LocalOptionsSnapshot)
	w.I64(h.Timestamp)
	mapName := h.MapName
	if len(mapName) > maxMapNameLen-1 {
		mapName = mapName[:maxMapNameLen-1]
	}
	w.ZString(mapName)
	w.I32(h.ConsolePlayerIndex)
	w.U32(uint32(len(h.Resources)))
	for _, r := range h.Resources {
		w.LString(r.Name)
		w.LString(r.Type)
		w.ZString(r.SHA1)
	}
	w.U8(uint8(FrameHeaderEnd))
	return w.Bytes()
}

// NetworkMessageFrame is one recorded inbound packet (spec.md §4.L
// "network_message: {player_number, size, bytes}").
type NetworkMessageFrame struct {
	PlayerNumber int32
	Bytes        []byte
}

// ConsoleCommandFrame is one recorded non-menu console command.
type ConsoleCommandFrame struct {
	Type   int32
	Source int32
	Name   string
	Opts   string
}

func (f NetworkMessageFrame) marshal() []byte {
	w := protocol.NewWriter(9 + len(f.Bytes))
	w.U8(uint8(FrameNetworkMessage))
	w.I32(f.PlayerNumber)
	w.Bytes32(f.Bytes)
	return w.Bytes()
}

func (f ConsoleCommandFrame) marshal() []byte {
	w := protocol.NewWriter(32 + len(f.Name) + len(f.Opts))
	w.U8(uint8(FrameConsoleCommand))
	w.I32(f.Type)
	w.I32(f.Source)
	w.LString(f.Name)
	w.LString(f.Opts)
	return w.Bytes()
}

func marshalPlayerCommandFrame(cmd protocol.Command) []byte {
	w := protocol.NewWriter(1)
	w.U8(uint8(FramePlayerCommand))
	body := protocol.PlayerCommand{Commands: []protocol.Command{cmd}}.Marshal()
	return append(w.Bytes(), body...)
}

// CheckpointEntry is one toc.json row: a world tic mapped to the byte
// offset in demodata.bin where playback should seek to resume from
// the paired save+screenshot (spec.md §4.L "Rewind loads the latest
// checkpoint whose world_index ≤ the target index").
type CheckpointEntry struct {
	WorldIndex uint32 `json:"world_index"`
	Offset     int64  `json:"offset"`
	SaveFile   string `json:"save_file"`
	Screenshot string `json:"screenshot"`
}

// mapInfo is the per-map info.json payload.
type mapInfo struct {
	MapName          string `json:"map_name"`
	SettingsSnapshot []byte `json:"settings_snapshot"`
}

// topInfo is the top-level info.json payload.
type topInfo struct {
	EngineVersion   uint32 `json:"engine_version"`
	ProtocolVersion uint32 `json:"protocol_version"`
	Author          string `json:"author"`
	Date            string `json:"date"`
}

// Recorder writes a demo directory tree as the session plays, one
// sub-directory per map, and archives the whole tree into a `.ecd`
// on Close.
type Recorder struct {
	root      string
	timestamp string

	mapIndex int
	mapDir   string
	dataFile *os.File
	writer   *bufio.Writer
	toc      []CheckpointEntry
}

// NewRecorder creates {workDir}/{timestamp}/ with a top-level info.json
// and returns a Recorder ready for AddMap.
func NewRecorder(workDir, timestamp string, engineVersion, protocolVersion uint32, author string) (*Recorder, error) {
	root := filepath.Join(workDir, timestamp)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("demo: create %s: %w", root, err)
	}
	info := topInfo{EngineVersion: engineVersion, ProtocolVersion: protocolVersion, Author: author, Date: timestamp}
	if err := writeJSON(filepath.Join(root, "info.json"), info); err != nil {
		return nil, err
	}
	return &Recorder{root: root, timestamp: timestamp, mapIndex: -1}, nil
}

// AddMap closes any in-progress map directory and starts a new one,
// writing demodata.bin's header (spec.md §4.L "a fixed header...
// followed by... resource records... then a one-byte end_of_header
// sentinel").
func (rec *Recorder) AddMap(h Header) error {
	if err := rec.Flush(); err != nil {
		return err
	}
	rec.mapIndex++
	rec.toc = nil
	rec.mapDir = filepath.Join(rec.root, fmt.Sprintf("%d", rec.mapIndex))
	if err := os.MkdirAll(rec.mapDir, 0o755); err != nil {
		return fmt.Errorf("demo: create map dir: %w", err)
	}

	f, err := os.Create(filepath.Join(rec.mapDir, "demodata.bin"))
	if err != nil {
		return fmt.Errorf("demo: create demodata.bin: %w", err)
	}
	rec.dataFile = f
	rec.writer = bufio.NewWriter(f)
	if _, err := rec.writer.Write(h.marshal()); err != nil {
		return fmt.Errorf("demo: write header: %w", err)
	}

	info := mapInfo{MapName: h.MapName, SettingsSnapshot: h.SettingsSnapshot}
	return writeJSON(filepath.Join(rec.mapDir, "info.json"), info)
}

// WriteNetworkMessage records an inbound packet before dispatch
// (spec.md §4.L "every inbound packet is written as network_message
// BEFORE being dispatched").
func (rec *Recorder) WriteNetworkMessage(playerNumber int32, raw []byte) error {
	_, err := rec.writer.Write(NetworkMessageFrame{PlayerNumber: playerNumber, Bytes: raw}.marshal())
	return err
}

// WritePlayerCommand records one local command.
func (rec *Recorder) WritePlayerCommand(cmd protocol.Command) error {
	_, err := rec.writer.Write(marshalPlayerCommandFrame(cmd))
	return err
}

// WriteConsoleCommand records a non-menu console command.
func (rec *Recorder) WriteConsoleCommand(f ConsoleCommandFrame) error {
	_, err := rec.writer.Write(f.marshal())
	return err
}

// Checkpoint flushes demodata.bin, records the current file offset
// plus a save state and screenshot, and appends the entry to toc.json
// (spec.md §4.L "Checkpoints").
func (rec *Recorder) Checkpoint(worldIndex uint32, save, screenshot []byte) error {
	if err := rec.writer.Flush(); err != nil {
		return fmt.Errorf("demo: flush before checkpoint: %w", err)
	}
	offset, err := rec.dataFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("demo: seek: %w", err)
	}

	idx := len(rec.toc)
	saveFile := fmt.Sprintf("save%d.sav", idx)
	shotFile := fmt.Sprintf("save%d.png", idx)
	if err := os.WriteFile(filepath.Join(rec.mapDir, saveFile), save, 0o644); err != nil {
		return fmt.Errorf("demo: write save: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rec.mapDir, shotFile), screenshot, 0o644); err != nil {
		return fmt.Errorf("demo: write screenshot: %w", err)
	}

	rec.toc = append(rec.toc, CheckpointEntry{WorldIndex: worldIndex, Offset: offset, SaveFile: saveFile, Screenshot: shotFile})
	return writeJSON(filepath.Join(rec.mapDir, "toc.json"), rec.toc)
}

// Flush writes any pending buffered bytes and closes the current map's
// demodata.bin, if one is open.
func (rec *Recorder) Flush() error {
	if rec.writer == nil {
		return nil
	}
	if err := rec.writer.Flush(); err != nil {
		return fmt.Errorf("demo: flush: %w", err)
	}
	if err := rec.dataFile.Close(); err != nil {
		return fmt.Errorf("demo: close demodata.bin: %w", err)
	}
	rec.writer = nil
	rec.dataFile = nil
	return nil
}

// Close finishes the current map, then archives the whole recording
// directory into {root}.ecd (spec.md §6 "ZIP file, extension .ecd.
// Single top-level directory named with the recording's ISO-like
// timestamp").
func (rec *Recorder) Close() (string, error) {
	if err := rec.Flush(); err != nil {
		return "", err
	}
	archivePath := rec.root + ".ecd"
	if err := zipDir(rec.root, rec.timestamp, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("demo: marshal %s: %w", path, err)
	}
	return os.WriteFile(path, b, 0o644)
}

func zipDir(srcDir, topName, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("demo: create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.Join(topName, rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("demo: archive %s: %w", srcDir, err)
	}
	return zw.Close()
}

// Frame is one decoded body record, with exactly one of the typed
// fields populated depending on Kind.
type Frame struct {
	Kind           FrameKind
	NetworkMessage NetworkMessageFrame
	PlayerCommand  protocol.Command
	ConsoleCommand ConsoleCommandFrame
}

// Player replays one map's demodata.bin sequentially.
type Player struct {
	mapDir string
	file   *os.File
	reader *bufio.Reader
	Header Header
	toc    []CheckpointEntry
}

// OpenMap opens {archiveRoot}/{mapIndex}/demodata.bin, reads its
// header, and cross-checks the declared resources against resolved
// ones by SHA-1, aborting on the first mismatch (spec.md §4.L
// "mismatches abort playback with a message naming the resource").
func OpenMap(mapDir string, resolved []config.Resource) (*Player, error) {
	f, err := os.Open(filepath.Join(mapDir, "demodata.bin"))
	if err != nil {
		return nil, fmt.Errorf("demo: open demodata.bin: %w", err)
	}
	br := bufio.NewReader(f)
	header, err := readHeader(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := verifyResources(header.Resources, resolved); err != nil {
		f.Close()
		return nil, err
	}

	var toc []CheckpointEntry
	tocBytes, err := os.ReadFile(filepath.Join(mapDir, "toc.json"))
	if err == nil {
		_ = json.Unmarshal(tocBytes, &toc)
	}

	return &Player{mapDir: mapDir, file: f, reader: br, Header: header, toc: toc}, nil
}

// readHeader parses demodata.bin's header directly off the buffered
// stream rather than as a length-prefixed whole, since the resource
// list makes the header's total length data-dependent.
func readHeader(br *bufio.Reader) (Header, error) {
	return readHeaderFields(&streamReader{br: br})
}

// streamReader adapts a *bufio.Reader to the fixed-width primitives
// internal/protocol.Reader expects, one field at a time, since the
// header must be parsed without knowing its total length up front.
type streamReader struct {
	br *bufio.Reader
}

func (s *streamReader) u8() (uint8, error)   { return s.br.ReadByte() }
func (s *streamReader) u32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(s.br, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
func (s *streamReader) i64() (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(s.br, b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), nil
}
func (s *streamReader) bytes32() ([]byte, error) {
	n, err := s.u32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
func (s *streamReader) zstring() (string, error) {
	var b []byte
	for {
		c, err := s.br.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}
func (s *streamReader) lstring() (string, error) {
	n, err := s.u32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readHeaderFields(s *streamReader) (Header, error) {
	var h Header
	var err error
	if h.EngineVersion, err = s.u32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if h.SubVersion, err = s.u32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if h.ProtocolVersion, err = s.u32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	var demoType uint32
	if demoType, err = s.u32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	h.DemoType = Type(int32(demoType))
	if h.SettingsSnapshot, err = s.bytes32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if h.LocalOptionsSnapshot, err = s.bytes32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if h.Timestamp, err = s.i64(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if h.MapName, err = s.zstring(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	var consoleIdx uint32
	if consoleIdx, err = s.u32(); err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	h.ConsolePlayerIndex = int32(consoleIdx)
	n, err := s.u32()
	if err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	h.Resources = make([]ResourceRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		var rec ResourceRecord
		if rec.Name, err = s.lstring(); err != nil {
			return h, fmt.Errorf("demo: read resource: %w", err)
		}
		if rec.Type, err = s.lstring(); err != nil {
			return h, fmt.Errorf("demo: read resource: %w", err)
		}
		if rec.SHA1, err = s.zstring(); err != nil {
			return h, fmt.Errorf("demo: read resource: %w", err)
		}
		h.Resources = append(h.Resources, rec)
	}
	sentinel, err := s.u8()
	if err != nil {
		return h, fmt.Errorf("demo: read header: %w", err)
	}
	if FrameKind(sentinel) != FrameHeaderEnd {
		return h, fmt.Errorf("demo: malformed header, missing end-of-header sentinel")
	}
	return h, nil
}

func verifyResources(declared []ResourceRecord, resolved []config.Resource) error {
	byName := make(map[string]config.Resource, len(resolved))
	for _, r := range resolved {
		byName[r.Name] = r
	}
	for _, want := range declared {
		got, ok := byName[want.Name]
		if !ok {
			return fmt.Errorf("demo: resource %q referenced by the demo is not available locally", want.Name)
		}
		if got.SHA1 != want.SHA1 {
			return fmt.Errorf("demo: resource %q hash mismatch: local %s, demo %s", want.Name, got.SHA1, want.SHA1)
		}
	}
	return nil
}

// Next reads and returns the next frame, or io.EOF when the stream is
// exhausted.
func (p *Player) Next() (Frame, error) {
	kindByte, err := p.reader.ReadByte()
	if err != nil {
		return Frame{}, err
	}
	kind := FrameKind(kindByte)
	switch kind {
	case FrameNetworkMessage:
		s := &streamReader{br: p.reader}
		var num uint32
		if num, err = s.u32(); err != nil {
			return Frame{}, fmt.Errorf("demo: read network_message: %w", err)
		}
		raw, err := s.bytes32()
		if err != nil {
			return Frame{}, fmt.Errorf("demo: read network_message: %w", err)
		}
		return Frame{Kind: kind, NetworkMessage: NetworkMessageFrame{PlayerNumber: int32(num), Bytes: raw}}, nil

	case FramePlayerCommand:
		body := make([]byte, protocolPlayerCommandFixedLen(1))
		if _, err := io.ReadFull(p.reader, body); err != nil {
			return Frame{}, fmt.Errorf("demo: read player_command: %w", err)
		}
		pc, err := protocol.UnmarshalPlayerCommand(body)
		if err != nil || len(pc.Commands) != 1 {
			return Frame{}, fmt.Errorf("demo: decode player_command: %w", err)
		}
		return Frame{Kind: kind, PlayerCommand: pc.Commands[0]}, nil

	case FrameConsoleCommand:
		s := &streamReader{br: p.reader}
		var typ, src uint32
		if typ, err = s.u32(); err != nil {
			return Frame{}, fmt.Errorf("demo: read console_command: %w", err)
		}
		if src, err = s.u32(); err != nil {
			return Frame{}, fmt.Errorf("demo: read console_command: %w", err)
		}
		name, err := s.lstring()
		if err != nil {
			return Frame{}, fmt.Errorf("demo: read console_command: %w", err)
		}
		opts, err := s.lstring()
		if err != nil {
			return Frame{}, fmt.Errorf("demo: read console_command: %w", err)
		}
		return Frame{Kind: kind, ConsoleCommand: ConsoleCommandFrame{Type: int32(typ), Source: int32(src), Name: name, Opts: opts}}, nil

	default:
		return Frame{}, fmt.Errorf("demo: unknown frame tag %d", kindByte)
	}
}

// protocolPlayerCommandFixedLen returns the byte length of a
// PlayerCommand.Marshal() body carrying n commands: a u32 count
// followed by n fixed-size command records.
func protocolPlayerCommandFixedLen(n int) int {
	const commandWireSize = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 1
	return 4 + n*commandWireSize
}

// CheckpointBefore returns the latest checkpoint whose WorldIndex is
// ≤ target, for seeking before a rewind-and-replay (spec.md §4.L
// "Rewind loads the latest checkpoint whose world_index ≤ the target
// index, seeks demodata.bin to that offset, and replays forward").
func (p *Player) CheckpointBefore(target uint32) (CheckpointEntry, bool) {
	best := -1
	for i, c := range p.toc {
		if c.WorldIndex <= target {
			best = i
		}
	}
	if best < 0 {
		return CheckpointEntry{}, false
	}
	return p.toc[best], true
}

// SeekTo repositions the stream to byte offset, discarding the
// buffered reader's state, for resuming playback from a checkpoint.
func (p *Player) SeekTo(offset int64) error {
	if _, err := p.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("demo: seek: %w", err)
	}
	p.reader.Reset(p.file)
	return nil
}

// Close releases the underlying file handle.
func (p *Player) Close() error {
	return p.file.Close()
}

// Extract unpacks archivePath (a .ecd) into destDir, returning the
// path of the single top-level recording directory it contained.
func Extract(archivePath, destDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("demo: open archive: %w", err)
	}
	defer zr.Close()

	var top string
	for _, f := range zr.File {
		destPath := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return "", err
		}
		if err := extractOne(f, destPath); err != nil {
			return "", err
		}
		if top == "" {
			top = firstPathComponent(f.Name)
		}
	}
	if top == "" {
		return "", fmt.Errorf("demo: archive %s is empty", archivePath)
	}
	return filepath.Join(destDir, top), nil
}

func extractOne(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

func firstPathComponent(name string) string {
	for i, c := range name {
		if c == '/' {
			return name[:i]
		}
	}
	return name
}
