package localfs

// ListOptions configures how directory entries are listed.
type ListOptions struct {
	// IncludeHidden includes hidden files and directories (starting with .).
	// Default is false (hidden items excluded).
	IncludeHidden bool

	// PageSize is the number of children read per directory page.
	// Zero uses constants.DefaultDirPageSize.
	PageSize int
}
