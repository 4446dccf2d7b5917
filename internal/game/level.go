package game

import (
	"github.com/eternitynet/server/internal/collision"
)

// DemoMap builds a small sector map used by tests and by the server when
// no real IWAD/PWAD geometry has been negotiated yet. It is not a WAD
// parser substitute — map geometry parsing is out of scope (spec.md
// Non-goals) — this only exercises the tile/sector plumbing the rest of
// the package depends on.
func DemoMap() (*collision.TileMap, *collision.SectorTable) {
	return DemoMapSized(64, 64)
}

// DemoMapSized builds a bordered arena of the given tile dimensions with
// one lift sector in the middle, for tests that need a specific extent.
func DemoMapSized(width, height int) (*collision.TileMap, *collision.SectorTable) {
	if width < 8 {
		width = 8
	}
	if height < 8 {
		height = 8
	}
	tm := collision.NewTileMap(width, height)
	sectors := collision.NewSectorTable()
	tm.Sectors = sectors

	for x := 0; x < width; x++ {
		tm.Set(x, 0, collision.TileSolid)
		tm.Set(x, height-1, collision.TileSolid)
	}
	for y := 0; y < height; y++ {
		tm.Set(0, y, collision.TileSolid)
		tm.Set(width-1, y, collision.TileSolid)
	}

	const liftSectorID int32 = 1
	sectors.Add(liftSectorID, 0, 128)
	cx, cy := width/2, height/2
	tm.LinkSector(cx, cy, liftSectorID)

	return tm, sectors
}

// RenderTileMap returns an ASCII view of a tilemap, used by console
// status output and tests that want a readable map dump without pulling
// in a real renderer (spec.md Non-goals exclude the renderer itself).
func RenderTileMap(tm *collision.TileMap) [][]rune {
	result := make([][]rune, tm.Height)
	for y := 0; y < tm.Height; y++ {
		result[y] = make([]rune, tm.Width)
		for x := 0; x < tm.Width; x++ {
			tile := tm.Get(x, y)
			switch {
			case tile&collision.TileSolid != 0:
				result[y][x] = '#'
			case tile&collision.TilePlatform != 0:
				result[y][x] = '='
			case tile&collision.TileHazard != 0:
				result[y][x] = '^'
			case tile&collision.TileLadder != 0:
				result[y][x] = 'H'
			case tile&collision.TileWater != 0:
				result[y][x] = '~'
			default:
				result[y][x] = ' '
			}
		}
	}
	return result
}
