package index

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// EntryBitmaps holds roaring bitmaps over global entry ids.
// Flagged: entries whose decoded name carries U+FFFD (indexed anyway, but
// visible to diagnostics). Collided: entries that lost their normalized key
// to an earlier insert (an earlier-priority archive or an earlier entry of
// the same archive).
type EntryBitmaps struct {
	Flagged  *roaring.Bitmap
	Collided *roaring.Bitmap
}

func NewEntryBitmaps() *EntryBitmaps {
	return &EntryBitmaps{
		Flagged:  roaring.New(),
		Collided: roaring.New(),
	}
}

func (eb *EntryBitmaps) AddFlagged(id uint32)  { eb.Flagged.Add(id) }
func (eb *EntryBitmaps) AddCollided(id uint32) { eb.Collided.Add(id) }
