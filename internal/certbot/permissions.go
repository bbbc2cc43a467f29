package certbot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// NormalizePermissions makes a domain's live and archive trees readable by
// the proxy server, which runs as a different user: directories 0755,
// regular files 0644. Symlinks are left alone.
func (c *Client) NormalizePermissions(name string) error {
	roots := []string{
		filepath.Join(c.opts.CertsDir, "live"),
		filepath.Join(c.opts.CertsDir, "archive"),
	}
	for _, root := range roots {
		if err := chmodDir(root); err != nil {
			return err
		}
		if err := chmodTree(filepath.Join(root, name)); err != nil {
			return err
		}
	}
	return nil
}

func chmodDir(path string) error {
	if err := os.Chmod(path, 0o755); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func chmodTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		case d.IsDir():
			return os.Chmod(path, 0o755)
		default:
			return os.Chmod(path, 0o644)
		}
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("normalize permissions under %s: %w", root, err)
	}
	return nil
}
