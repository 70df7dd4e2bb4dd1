// Package filesystem is a tagpool.BackendDriver backed by a plain
// directory tree: one file per item, one symlink per tag membership.
package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tagpool "github.com/kodecache/tagpool"
	"github.com/kodecache/tagpool/internal/envelope"
	"github.com/kodecache/tagpool/internal/keyhash"
)

const tagsSubdir = "tags"

// Driver is a filesystem-backed tagpool.BackendDriver (spec.md §4.2):
// items are written to sharded files under Directory, and tag membership
// is recorded as symlinks under Directory/tags/<tag>/.
type Driver struct {
	root     string
	dirMode  os.FileMode
	fileMode os.FileMode
	logger   *slog.Logger
}

var _ tagpool.BackendDriver = (*Driver)(nil)

// NewDriver creates a filesystem driver rooted at cfg.Directory, creating
// it if it does not already exist.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Directory == "" {
		return nil, tagpool.ErrInvalidConfig("filesystem: directory must not be empty")
	}
	if err := os.MkdirAll(cfg.Directory, cfg.DirMode); err != nil {
		return nil, tagpool.ErrBackendFatal("filesystem", fmt.Errorf("create root: %w", err))
	}
	return &Driver{
		root:     cfg.Directory,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
		logger:   slog.Default(),
	}, nil
}

// itemPath returns the two-level sharded path an item file with id lives
// at: <root>/<aa>/<bb>/<hash_tail>, per spec.md §4.2.
func (d *Driver) itemPath(id string) string {
	shard := keyhash.ShardHex(id)
	return filepath.Join(d.root, shard[0:2], shard[2:4], shard[4:])
}

// tagDir returns the directory that holds one symlink per item id
// currently tagged with tagID.
func (d *Driver) tagDir(tagID string) string {
	return filepath.Join(d.root, tagsSubdir, url.PathEscape(tagID))
}

// linkPath names an item's symlink by the first 20 hex characters of the
// item id's ShardHex.
func (d *Driver) linkPath(tagID, itemID string) string {
	return filepath.Join(d.tagDir(tagID), keyhash.ShardHex(itemID)[:20])
}

// DoFetch reads each requested id's item file, skipping anything missing,
// expired, or unreadable (spec.md §7: never surfaced as a Go error).
func (d *Driver) DoFetch(ctx context.Context, ids []string) ([]tagpool.FetchResult, error) {
	results := make([]tagpool.FetchResult, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := d.readItem(id)
		if err != nil {
			d.logger.Warn("tagpool/filesystem: unreadable item file, treating as miss", "id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		results = append(results, tagpool.FetchResult{ID: id, Record: rec})
	}
	return results, nil
}

// readItem opens the item file for id, per the header format
//
//	<unix_expiry>\n<urlencoded_id>\n<urlencoded_comma_joined_tags>\n<marshalled payload>
//
// dropping the file (best-effort unlink) and reporting a miss if it is
// expired, corrupt, or was written for a different id (a shard collision).
func (d *Driver) readItem(id string) (tagpool.Record, bool, error) {
	path := d.itemPath(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tagpool.Record{}, false, nil
		}
		return tagpool.Record{}, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	expiryLine, err := r.ReadString('\n')
	if err != nil {
		_ = os.Remove(path)
		return tagpool.Record{}, false, fmt.Errorf("read expiry header: %w", err)
	}
	idLine, err := r.ReadString('\n')
	if err != nil {
		_ = os.Remove(path)
		return tagpool.Record{}, false, fmt.Errorf("read id header: %w", err)
	}
	tagsLine, err := r.ReadString('\n')
	if err != nil {
		_ = os.Remove(path)
		return tagpool.Record{}, false, fmt.Errorf("read tags header: %w", err)
	}

	expiry, err := strconv.ParseInt(strings.TrimSuffix(expiryLine, "\n"), 10, 64)
	if err != nil {
		_ = os.Remove(path)
		return tagpool.Record{}, false, fmt.Errorf("parse expiry header: %w", err)
	}
	if expiry != 0 && time.Now().Unix() >= expiry {
		_ = os.Remove(path)
		return tagpool.Record{}, false, nil
	}

	storedID, err := url.PathUnescape(strings.TrimSuffix(idLine, "\n"))
	if err != nil {
		_ = os.Remove(path)
		return tagpool.Record{}, false, fmt.Errorf("decode id header: %w", err)
	}
	if storedID != id {
		// Shard collision with a different id: drop the file, report a miss.
		_ = os.Remove(path)
		return tagpool.Record{}, false, nil
	}

	tags, value, err := envelope.DecodeFrom(r, tagsLine)
	if err != nil {
		return tagpool.Record{}, false, fmt.Errorf("read payload: %w", err)
	}

	return tagpool.Record{Value: value, Tags: tags}, true, nil
}

// DoSave writes every record to its sharded item file (write-then-rename,
// spec.md §4.2) and updates tag relation symlinks per ops. Individual
// write failures are reported in failed rather than aborting the batch.
func (d *Driver) DoSave(ctx context.Context, records map[string]tagpool.Record, ttl time.Duration, ops tagpool.TagOps) ([]string, error) {
	var failed []string

	var expiry int64
	if ttl > 0 {
		expiry = time.Now().Add(ttl).Unix()
	}

	for id, rec := range records {
		if err := d.writeItem(id, rec, expiry); err != nil {
			d.logger.Warn("tagpool/filesystem: write failed", "id", id, "error", err)
			failed = append(failed, id)
		}
	}

	for tagID, itemIDs := range ops.Remove {
		for _, itemID := range itemIDs {
			_ = os.Remove(d.linkPath(tagID, itemID))
		}
	}
	for tagID, itemIDs := range ops.Add {
		dir := d.tagDir(tagID)
		if err := os.MkdirAll(dir, d.dirMode); err != nil {
			d.logger.Warn("tagpool/filesystem: create tag dir failed", "tag_id", tagID, "error", err)
			continue
		}
		for _, itemID := range itemIDs {
			link := d.linkPath(tagID, itemID)
			_ = os.Remove(link)
			if err := os.Symlink(d.itemPath(itemID), link); err != nil {
				d.logger.Warn("tagpool/filesystem: symlink failed", "tag_id", tagID, "item_id", itemID, "error", err)
			}
		}
	}

	return failed, nil
}

// writeItem writes rec to a temporary file alongside id's final path, then
// renames it into place: readers never observe a partially written file.
func (d *Driver) writeItem(id string, rec tagpool.Record, expiry int64) error {
	path := d.itemPath(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, d.dirMode); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "%d\n", expiry)
	fmt.Fprintf(w, "%s\n", url.PathEscape(id))
	if _, err := w.Write(envelope.Encode(rec.Tags, rec.Value)); err != nil {
		tmp.Close()
		return fmt.Errorf("write payload: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Chmod(d.fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// DoDelete removes item files for ids, tolerating ids that do not exist.
// An id whose file is present but fails to unlink (permissions, a busy
// mount, …) is reported back in failed rather than swallowed.
func (d *Driver) DoDelete(ctx context.Context, ids []string) ([]string, error) {
	var failed []string
	for _, id := range ids {
		if err := os.Remove(d.itemPath(id)); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("tagpool/filesystem: delete failed", "id", id, "error", err)
			failed = append(failed, id)
		}
	}
	return failed, nil
}

// DoDeleteTagRelations best-effort unlinks every (tag, item) symlink named
// in tagData.
func (d *Driver) DoDeleteTagRelations(ctx context.Context, tagData map[string][]string) error {
	for tagID, itemIDs := range tagData {
		for _, itemID := range itemIDs {
			_ = os.Remove(d.linkPath(tagID, itemID))
		}
	}
	return nil
}

// DoInvalidate sweeps every item referenced by tagIDs: for each tag
// directory, rename it aside first so concurrent readers never observe a
// half-swept directory, then walk the renamed copy unlinking the item
// files the symlinks point at before removing the copy itself (spec.md
// §4.2's rename-then-sweep protocol).
func (d *Driver) DoInvalidate(ctx context.Context, tagIDs []string) error {
	for _, tagID := range tagIDs {
		dir := d.tagDir(tagID)
		if _, err := os.Lstat(dir); os.IsNotExist(err) {
			continue
		}

		staging := dir + fmt.Sprintf(".invalidating-%d", time.Now().UnixNano())
		if err := os.Rename(dir, staging); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return tagpool.ErrBackendFatal("filesystem", fmt.Errorf("rename tag dir %q: %w", tagID, err))
		}

		entries, err := os.ReadDir(staging)
		if err != nil {
			d.logger.Warn("tagpool/filesystem: read staging tag dir failed", "tag_id", tagID, "error", err)
			_ = os.RemoveAll(staging)
			continue
		}
		for _, e := range entries {
			target, err := os.Readlink(filepath.Join(staging, e.Name()))
			if err != nil {
				continue
			}
			_ = os.Remove(target)
		}
		if err := os.RemoveAll(staging); err != nil {
			d.logger.Warn("tagpool/filesystem: remove staging tag dir failed", "tag_id", tagID, "error", err)
		}
	}
	return nil
}

// DoClear wipes everything under the root directory by removing and
// recreating it (tagpool.Pool.Clear's optional "clearer" capability).
func (d *Driver) DoClear(ctx context.Context) error {
	if err := os.RemoveAll(d.root); err != nil {
		return tagpool.ErrBackendFatal("filesystem", fmt.Errorf("clear root: %w", err))
	}
	return os.MkdirAll(d.root, d.dirMode)
}
