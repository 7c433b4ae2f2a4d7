package anki

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Collection member names, newest layout first. Which one is present decides
// how the rest of the package is read.
const (
	collectionModernZstd = "collection.anki21b"
	collectionModern     = "collection.anki21"
	collectionLegacy     = "collection.anki2"

	mediaManifest = "media"
)

// zstd frame magic, used to probe the media manifest encoding.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Package is an opened Anki deck package. It hides the layout differences
// between the legacy single-database format and the newer zstd-compressed
// one behind one reader.
type Package struct {
	zr         *zip.ReadCloser
	members    map[string]*zip.File
	collection string // member name found by the probe
	tempDir    string
	dbPath     string // extracted collection, filled lazily
}

// OpenPackage opens a deck package and probes for a known layout.
func OpenPackage(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[f.Name] = f
	}

	pkg := &Package{zr: zr, members: members}
	for _, name := range []string{collectionModernZstd, collectionModern, collectionLegacy} {
		if _, ok := members[name]; ok {
			pkg.collection = name
			return pkg, nil
		}
	}
	zr.Close()
	return nil, fmt.Errorf("%w: no embedded collection found", ErrBadArchive)
}

// Close releases the archive and any extracted temp files.
func (p *Package) Close() error {
	if p.tempDir != "" {
		os.RemoveAll(p.tempDir)
		p.tempDir = ""
	}
	return p.zr.Close()
}

// CollectionPath extracts the embedded database to a temp file and returns
// its path. The newest layout stores the database zstd-compressed.
func (p *Package) CollectionPath() (string, error) {
	if p.dbPath != "" {
		return p.dbPath, nil
	}

	tempDir, err := os.MkdirTemp("", "memoru-anki-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	p.tempDir = tempDir

	src, err := p.members[p.collection].Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrBadArchive, p.collection, err)
	}
	defer src.Close()

	var reader io.Reader = src
	if p.collection == collectionModernZstd {
		dec, err := zstd.NewReader(src)
		if err != nil {
			return "", fmt.Errorf("%w: zstd collection: %v", ErrBadArchive, err)
		}
		defer dec.Close()
		reader = dec
	}

	dbPath := filepath.Join(tempDir, "collection.sqlite")
	dst, err := os.Create(dbPath)
	if err != nil {
		return "", fmt.Errorf("extract collection: %w", err)
	}
	if _, err := io.Copy(dst, reader); err != nil {
		dst.Close()
		return "", fmt.Errorf("%w: extract collection: %v", ErrBadArchive, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("extract collection: %w", err)
	}

	p.dbPath = dbPath
	return dbPath, nil
}

// MediaIndex returns the package's media map: archive member name (a small
// stringified integer) to original file name. The manifest is JSON, either
// plain (legacy packages) or zstd-compressed (newer ones); the encoding is
// probed from the frame magic. A package with no manifest has no media.
func (p *Package) MediaIndex() (map[string]string, error) {
	member, ok := p.members[mediaManifest]
	if !ok {
		return map[string]string{}, nil
	}
	src, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open media manifest: %v", ErrBadArchive, err)
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: read media manifest: %v", ErrBadArchive, err)
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress media manifest: %v", ErrBadArchive, err)
		}
	}

	index := make(map[string]string)
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("%w: decode media manifest: %v", ErrBadArchive, err)
	}
	return index, nil
}

// OpenMember opens one archive member by name.
func (p *Package) OpenMember(name string) (io.ReadCloser, error) {
	member, ok := p.members[name]
	if !ok {
		return nil, fmt.Errorf("member %q: %w", name, ErrMediaMissing)
	}
	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %q: %w", name, err)
	}
	return rc, nil
}
