// Package collision implements collision detection.
// Tile-based for world geometry, AABB for entity interactions.
package collision

// TileFlag represents collision properties of a tile
type TileFlag uint8

const (
	TileEmpty    TileFlag = 0
	TileSolid    TileFlag = 1 << iota // Blocks movement from all directions
	TilePlatform                      // Blocks from below only (pass-through)
	TileHazard                        // Damages on contact
	TileLadder                        // Allows climbing
	TileWater                         // Slows movement, allows swimming
)

// TileSize is the world-unit edge length of one tile, used to convert
// an actor's floating-point position into a tile-grid lookup.
const TileSize = 64.0

// TileMap holds collision data for the world. FloorHeights carries the
// static floor height of each cell; SectorIndex binds a cell to a
// SectorTable entry when its floor/ceiling moves (spec.md §4.G
// "sector snapshots feed the unlagged rewind").
type TileMap struct {
	Width  int
	Height int
	Tiles  []TileFlag

	FloorHeights []float64
	SectorIndex  []int32 // 0 = not linked to a moving sector
	Sectors      *SectorTable
}

// NewTileMap creates a tile map with given dimensions
func NewTileMap(width, height int) *TileMap {
	return &TileMap{
		Width:        width,
		Height:       height,
		Tiles:        make([]TileFlag, width*height),
		FloorHeights: make([]float64, width*height),
		SectorIndex:  make([]int32, width*height),
	}
}

// Get returns the tile flag at the given position
func (m *TileMap) Get(x, y int) TileFlag {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return TileSolid // Out of bounds = solid
	}
	return m.Tiles[y*m.Width+x]
}

// Set sets the tile flag at the given position
func (m *TileMap) Set(x, y int, flag TileFlag) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Tiles[y*m.Width+x] = flag
}

// IsSolid checks if the tile blocks movement
func (m *TileMap) IsSolid(x, y int) bool {
	return m.Get(x, y)&TileSolid != 0
}

// IsPlatform checks if the tile is a pass-through platform
func (m *TileMap) IsPlatform(x, y int) bool {
	return m.Get(x, y)&TilePlatform != 0
}

// cellAt converts a world-space position to tile-grid coordinates.
func (m *TileMap) cellAt(x, y float64) (int, int) {
	return int(x / TileSize), int(y / TileSize)
}

// FloorHeightAt returns the floor height an actor rests on at the given
// world position: the linked sector's current floor if the cell is
// bound to one, otherwise the cell's static floor height.
func (m *TileMap) FloorHeightAt(x, y float64) float64 {
	cx, cy := m.cellAt(x, y)
	if cx < 0 || cx >= m.Width || cy < 0 || cy >= m.Height {
		return 0
	}
	idx := cy*m.Width + cx
	if sid := m.SectorIndex[idx]; sid != 0 && m.Sectors != nil {
		if s := m.Sectors.Get(sid); s != nil {
			return s.FloorHeight
		}
	}
	return m.FloorHeights[idx]
}

// LinkSector binds a tile cell to a moving sector index.
func (m *TileMap) LinkSector(x, y int, sectorID int32) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.SectorIndex[y*m.Width+x] = sectorID
}
