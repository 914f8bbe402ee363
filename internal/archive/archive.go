// Package archive packs a directory into a single zip or tar file.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
)

const (
	partSuffix = ".part"
	chunkSize  = 1 << 20
)

// ProgressFunc receives the number of source bytes packed so far and the
// total size of all regular files in the source tree.
type ProgressFunc func(written, total int64)

// Request describes one archive to build.
type Request struct {
	// Source is the directory to pack. Entries are rooted at its base name.
	Source string

	// TargetDir must already exist.
	TargetDir string

	// BaseName is the archive name without extension. It may contain
	// sub-directories, which are created below TargetDir. Defaults to the
	// base name of Source.
	BaseName string

	Format     Format
	OnProgress ProgressFunc
}

type entry struct {
	path string
	name string
	info fs.FileInfo
}

// Create builds the archive and returns its path.
// Nothing is written when the format, name or directories are invalid.
func Create(ctx context.Context, req Request) (string, error) {
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return "", err
	}

	source := filepath.Clean(req.Source)
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", source, errpkg.ErrSourceNotDir)
	}

	target := filepath.Clean(req.TargetDir)
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s: %w", target, errpkg.ErrTargetNotFound)
	}

	name := req.BaseName
	if name == "" {
		name = filepath.Base(source)
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%q: %w", name, errpkg.ErrInvalidArchiveName)
	}

	entries, total, err := collect(source)
	if err != nil {
		return "", err
	}

	final := filepath.Join(target, name+format.Ext())
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	part := final + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	p := &packer{ctx: ctx, total: total, onProgress: req.OnProgress}
	if format == Zip {
		err = p.writeZip(f, entries)
	} else {
		err = p.writeTar(f, format, entries)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return "", err
	}

	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("rename archive: %w", err)
	}
	return final, nil
}

// collect walks the source tree. Only directories and regular files are packed.
func collect(source string) ([]entry, int64, error) {
	root := filepath.Base(source)
	var (
		entries []entry
		total   int64
	)

	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(filepath.Join(root, rel))
		if d.IsDir() {
			name += "/"
		} else {
			total += info.Size()
		}
		entries = append(entries, entry{path: path, name: name, info: info})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk source: %w", err)
	}
	return entries, total, nil
}

type packer struct {
	ctx        context.Context
	written    int64
	total      int64
	onProgress ProgressFunc
	buf        []byte
}

func (p *packer) writeZip(w io.Writer, entries []entry) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for _, e := range entries {
		hdr, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return fmt.Errorf("zip header %s: %w", e.name, err)
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Method = zip.Store
		} else {
			hdr.Method = zip.Deflate
		}

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", e.name, err)
		}
		if !e.info.IsDir() {
			if err := p.copyFile(dst, e.path); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}

func (p *packer) writeTar(w io.Writer, format Format, entries []entry) error {
	cw, err := compressor(w, format)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(cw)
	for _, e := range entries {
		hdr, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return fmt.Errorf("tar header %s: %w", e.name, err)
		}
		hdr.Name = e.name
		hdr.Format = tar.FormatPAX

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar entry %s: %w", e.name, err)
		}
		if !e.info.IsDir() {
			if err := p.copyFile(tw, e.path); err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", format, err)
	}
	return nil
}

func compressor(w io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case GzTar:
		return gzip.NewWriter(w), nil
	case BzTar:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	case XzTar:
		return xz.NewWriter(w)
	default:
		return nopCloser{w}, nil
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// copyFile streams one file in chunks, checking for cancellation between them.
func (p *packer) copyFile(dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	if p.buf == nil {
		p.buf = make([]byte, chunkSize)
	}

	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}

		n, rerr := src.Read(p.buf)
		if n > 0 {
			if _, err := dst.Write(p.buf[:n]); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			p.written += int64(n)
			if p.onProgress != nil {
				p.onProgress(p.written, p.total)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read %s: %w", path, rerr)
		}
	}
}
