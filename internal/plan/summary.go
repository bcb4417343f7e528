package plan

import (
	"sort"

	"rewind/server/internal/delta"
)

// CellRef is an unpacked cell position for display.
type CellRef struct {
	Region string `json:"region"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
}

// Summary aggregates a Plan into the counts and sample positions sent to
// preview observers. It is the document pushed over the preview socket.
type Summary struct {
	FrameCount      int       `json:"frameCount" jsonschema:"description=Number of frames folded into the plan"`
	CellCount       int       `json:"cellCount" jsonschema:"description=Cells whose state would be restored"`
	RecordCount     int       `json:"recordCount" jsonschema:"description=Auxiliary records that would be restored"`
	RemoveCount     int       `json:"removeCount" jsonschema:"description=Objects that would be removed"`
	RespawnCount    int       `json:"respawnCount" jsonschema:"description=Objects that would be recreated"`
	RestoreCount    int       `json:"restoreCount" jsonschema:"description=Objects whose attributes would be restored"`
	SampleCells     []CellRef `json:"sampleCells,omitempty" jsonschema:"description=Bounded sample of affected cell positions"`
	SampleTruncated bool      `json:"sampleTruncated,omitempty"`
}

// Summarize builds a Summary with at most sampleLimit cell positions. The
// sample is ordered by key for stable output.
func (p Plan) Summarize(sampleLimit int) Summary {
	s := Summary{
		FrameCount:   p.FrameCount,
		CellCount:    len(p.CellTargets),
		RecordCount:  len(p.AttachedRecords) + len(p.StandaloneRecords),
		RemoveCount:  len(p.Removals),
		RespawnCount: len(p.Respawns),
		RestoreCount: len(p.AttrTargets),
	}
	if sampleLimit <= 0 || len(p.CellTargets) == 0 {
		return s
	}

	keys := make([]delta.CellKey, 0, len(p.CellTargets))
	for key := range p.CellTargets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Region != keys[j].Region {
			return keys[i].Region < keys[j].Region
		}
		return keys[i].Pos < keys[j].Pos
	})
	if len(keys) > sampleLimit {
		keys = keys[:sampleLimit]
		s.SampleTruncated = true
	}
	s.SampleCells = make([]CellRef, 0, len(keys))
	for _, key := range keys {
		x, y, z := key.Pos.Unpack()
		s.SampleCells = append(s.SampleCells, CellRef{Region: string(key.Region), X: x, Y: y, Z: z})
	}
	return s
}
