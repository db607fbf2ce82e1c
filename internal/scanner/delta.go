package scanner

// Delta computes what must be uploaded and what must be deleted, given the
// current scan snapshot and the last-synced cursor. A file is uploaded when
// force is set or its modification time is strictly newer than its cursor
// entry; a never-synced file always uploads. A path is deleted when the
// cursor knows it but the scan no longer does. Both sets come from the same
// snapshot so the result is internally consistent.
func Delta(files []TrackedFile, cursor *Cursor, force bool) (uploads []TrackedFile, deletes []string) {
	present := make(map[string]bool, len(files))

	for _, f := range files {
		present[f.Path] = true
		last, synced := cursor.Get(f.Path)
		if force || !synced || f.ModTime > last {
			uploads = append(uploads, f)
		}
	}

	for _, path := range cursor.Paths() {
		if !present[path] {
			deletes = append(deletes, path)
		}
	}

	return uploads, deletes
}
