package scraper

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var italianMonths = [...]string{
	"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
	"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre",
}

// ArchivePath is root/<year>/<month>/<day>/<stamp>_<tag><ext> for now.
func ArchivePath(root, tag, ext string, now time.Time) string {
	dir := filepath.Join(root,
		strconv.Itoa(now.Year()),
		italianMonths[now.Month()-1],
		strconv.Itoa(now.Day()),
	)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", now.Format("20060102_150405"), tag, ext))
}

// Organize moves a downloaded artifact into the dated archive tree under
// root and returns its new path. Text reports stay where they are.
func Organize(path, root, tag string, now time.Time) (string, error) {
	if strings.EqualFold(filepath.Ext(path), reportExt) {
		return path, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("artifact: %w", err)
	}

	dest := ArchivePath(root, tag, filepath.Ext(path), now)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	if err := os.Rename(path, dest); err != nil {
		// Rename fails across devices
		if err := copyFile(path, dest); err != nil {
			return "", err
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove original: %w", err)
		}
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
