package collision

// Sector is a moving-plane record: a floor or ceiling height that
// changes over time (lifts, doors, crushers). The unlagged rewind
// snapshots these alongside player positions so a hit check replayed
// against tic N sees the planes as they stood at tic N (spec.md §4.G).
type Sector struct {
	ID           int32
	FloorHeight  float64
	CeilHeight   float64
	FloorTarget  float64
	FloorSpeed   float64
	Moving       bool
}

// historyRingSize matches clientstate.RingSize: sector history is
// rewound against the same world_index window as player positions
// (spec.md §4.G "For every sector with a tracked moving floor/ceiling,
// do the same").
const historyRingSize = 128

type sectorHistoryEntry struct {
	worldIndex uint32
	heights    map[int32][2]float64
	valid      bool
}

// SectorTable holds every moving sector in the current map, keyed by
// sector ID (1-based; 0 means "no sector").
type SectorTable struct {
	sectors map[int32]*Sector
	history [historyRingSize]sectorHistoryEntry
}

// NewSectorTable returns an empty sector table.
func NewSectorTable() *SectorTable {
	return &SectorTable{sectors: make(map[int32]*Sector)}
}

// RecordHistory writes the current floor/ceiling heights of every
// sector into the ring slot for worldIndex, called once per tic after
// Tick() (spec.md §4.G rewind source).
func (t *SectorTable) RecordHistory(worldIndex uint32) {
	t.history[worldIndex%historyRingSize] = sectorHistoryEntry{
		worldIndex: worldIndex,
		heights:    t.Snapshot(),
		valid:      true,
	}
}

// HistoryAt returns the ring entry nearest worldIndex, clamped to the
// retention window exactly like clientstate.Client.PositionAt.
func (t *SectorTable) HistoryAt(worldIndex, currentIndex uint32) (map[int32][2]float64, bool) {
	target := worldIndex
	if currentIndex > historyRingSize && target < currentIndex-historyRingSize {
		target = currentIndex - historyRingSize + 1
	}
	entry := t.history[target%historyRingSize]
	if !entry.valid {
		return nil, false
	}
	return entry.heights, true
}

// Add registers a sector with a fixed starting floor/ceiling.
func (t *SectorTable) Add(id int32, floor, ceil float64) *Sector {
	s := &Sector{ID: id, FloorHeight: floor, CeilHeight: ceil}
	t.sectors[id] = s
	return s
}

// Get looks up a sector by ID, or nil if none exists.
func (t *SectorTable) Get(id int32) *Sector {
	return t.sectors[id]
}

// StartFloorMove begins a linear floor move toward target at the given
// speed (world units per tic).
func (t *SectorTable) StartFloorMove(id int32, target, speed float64) {
	s := t.sectors[id]
	if s == nil {
		return
	}
	s.FloorTarget = target
	s.FloorSpeed = speed
	s.Moving = true
}

// Tick advances every moving sector by one tic, clamping at its target.
func (t *SectorTable) Tick() {
	for _, s := range t.sectors {
		if !s.Moving {
			continue
		}
		if s.FloorHeight < s.FloorTarget {
			s.FloorHeight += s.FloorSpeed
			if s.FloorHeight >= s.FloorTarget {
				s.FloorHeight = s.FloorTarget
				s.Moving = false
			}
		} else if s.FloorHeight > s.FloorTarget {
			s.FloorHeight -= s.FloorSpeed
			if s.FloorHeight <= s.FloorTarget {
				s.FloorHeight = s.FloorTarget
				s.Moving = false
			}
		} else {
			s.Moving = false
		}
	}
}

// Snapshot captures every sector's current floor/ceiling height for the
// unlagged ring buffer (spec.md §4.G).
func (t *SectorTable) Snapshot() map[int32][2]float64 {
	out := make(map[int32][2]float64, len(t.sectors))
	for id, s := range t.sectors {
		out[id] = [2]float64{s.FloorHeight, s.CeilHeight}
	}
	return out
}

// Restore resets every sector's floor/ceiling to a prior snapshot,
// stopping any in-progress move (used when rewinding for a hit check).
func (t *SectorTable) Restore(snap map[int32][2]float64) {
	for id, hc := range snap {
		if s := t.sectors[id]; s != nil {
			s.FloorHeight = hc[0]
			s.CeilHeight = hc[1]
			s.Moving = false
		}
	}
}
