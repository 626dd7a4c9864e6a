package testing

// GetFileAndFolderCounts returns the number of directories and files among entries.
func GetFileAndFolderCounts(entries []*Entry) (int, int) {
	var folderCount, fileCount int
	for _, e := range entries {
		if e.IsDir() {
			folderCount++
		} else {
			fileCount++
		}
	}
	return folderCount, fileCount
}
