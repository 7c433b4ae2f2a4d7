package anki

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Foreign media reference syntax: [sound:NAME] and <img src="NAME">.
var (
	soundRef = regexp.MustCompile(`\[sound:([^\[\]]+)\]`)
	imageRef = regexp.MustCompile(`<img[^>]*\bsrc="([^">]+)"`)
)

// mediaResolver copies package media into the local media directory and
// rewrites references to point at the local copies. One resolver serves a
// whole import run so a file referenced by many notes is copied once.
type mediaResolver struct {
	pkg        *Package
	byOriginal map[string]string // original file name -> archive member
	localDir   string
	copied     map[string]string // original file name -> local file name
}

func newMediaResolver(pkg *Package, index map[string]string, localDir string) *mediaResolver {
	byOriginal := make(map[string]string, len(index))
	for member, original := range index {
		byOriginal[original] = member
	}
	return &mediaResolver{
		pkg:        pkg,
		byOriginal: byOriginal,
		localDir:   localDir,
		copied:     make(map[string]string),
	}
}

// rewrite resolves every media reference in text. A reference that cannot be
// resolved fails the whole text so the caller can skip the note.
func (r *mediaResolver) rewrite(text string) (string, error) {
	var firstErr error
	out := soundRef.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := soundRef.FindStringSubmatch(match)[1]
		local, err := r.resolve(name)
		if err != nil {
			firstErr = err
			return match
		}
		return "[sound:" + local + "]"
	})
	out = imageRef.ReplaceAllStringFunc(out, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := imageRef.FindStringSubmatch(match)[1]
		local, err := r.resolve(name)
		if err != nil {
			firstErr = err
			return match
		}
		return replaceName(match, name, local)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// resolve maps one original file name to a local copy, copying it out of the
// package on first use. Names may arrive percent-encoded.
func (r *mediaResolver) resolve(name string) (string, error) {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if local, ok := r.copied[name]; ok {
		return local, nil
	}

	member, ok := r.byOriginal[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrMediaMissing)
	}
	src, err := r.pkg.OpenMember(member)
	if err != nil {
		return "", err
	}
	defer src.Close()

	local := uuid.NewString() + filepath.Ext(name)
	dst, err := os.Create(filepath.Join(r.localDir, local))
	if err != nil {
		return "", fmt.Errorf("create local media: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy media %q: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("copy media %q: %w", name, err)
	}

	r.copied[name] = local
	return local, nil
}

// replaceName swaps the file name inside a matched reference, keeping the
// rest of the tag intact.
func replaceName(match, name, local string) string {
	return strings.Replace(match, name, local, 1)
}

// referencedMedia lists the media file names referenced by a card's text,
// percent-decoded, in order of appearance.
func referencedMedia(text string) []string {
	var names []string
	for _, re := range []*regexp.Regexp{soundRef, imageRef} {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			name := match[1]
			if decoded, err := url.PathUnescape(name); err == nil {
				name = decoded
			}
			names = append(names, name)
		}
	}
	return names
}
