package filesystem

import "os"

// Config represents the configuration for the filesystem cache driver.
type Config struct {
	// Directory is the root directory item files and tag relations are
	// stored under. Created on first use if missing.
	Directory string

	// DirMode is the permission mode used when creating shard and tag
	// directories.
	DirMode os.FileMode

	// FileMode is the permission mode used when writing item files.
	FileMode os.FileMode
}

// DefaultConfig returns a default filesystem cache configuration rooted at
// a tagpool-specific subdirectory of the OS temp directory.
func DefaultConfig() Config {
	return Config{
		Directory: os.TempDir() + "/tagpool",
		DirMode:   0o755,
		FileMode:  0o644,
	}
}

// WithDirectory sets the root directory.
func (c Config) WithDirectory(dir string) Config {
	c.Directory = dir
	return c
}

// WithDirMode sets the directory permission mode.
func (c Config) WithDirMode(mode os.FileMode) Config {
	c.DirMode = mode
	return c
}

// WithFileMode sets the file permission mode.
func (c Config) WithFileMode(mode os.FileMode) Config {
	c.FileMode = mode
	return c
}
