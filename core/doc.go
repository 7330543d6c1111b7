// Package core implements the Bitcask storage engine.
//
// A store is a directory of append-only segment files named bk_<id>.data.
// Exactly one segment, the one with the highest id, accepts writes; the
// rest are sealed. Every key lives in an in-memory key directory that points
// at the newest record bearing it, so a read is one positioned read of one
// record.
//
//	db, err := core.Open("/var/lib/app", core.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Put([]byte("foo"), []byte("bar")); err != nil {
//	    return err
//	}
//	v, err := db.Get([]byte("foo"))
//
// Deletes append tombstones. Compaction copies live records out of sealed
// segments into a fresh one and removes the originals; it can be run with
// Compact or left to a background loop driven by Config.AutoCompact.
//
// On Open the key directory is rebuilt by replaying segments in id order,
// using hint files (bk_<id>.hint) for sealed segments when they are valid.
// A torn record at the end of the active segment is discarded. Any other
// inconsistency fails the Open.
package core
