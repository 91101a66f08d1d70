// Package digest computes the file digests attached to enriched events.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// BufferSize is the read size used while streaming a file through the hashes
const BufferSize = 4096

// Digester produces a digest record for a path.
// snap is the inode snapshot the path was validated against; only that version of the
// file is hashed. Implementations never fail: unusable files yield a sentinel record.
type Digester interface {
	Digest(path string, snap domain.FileMetadata) domain.Hashes
}

// FileDigester reads files from the current filesystem view
type FileDigester struct{}

// New creates a file digester
func New() *FileDigester {
	return &FileDigester{}
}

// Digest opens path and hashes its content in a single pass.
// Only regular files matching snap are read, and exactly snap.Size bytes are expected.
// Otherwise the record keeps the path, empty digests, a zero size and the reason in Error.
func (d *FileDigester) Digest(path string, snap domain.FileMetadata) domain.Hashes {
	f, err := openSnapshot(path, snap)
	if err != nil {
		return domain.Hashes{
			File:  path,
			Error: err.Error(),
		}
	}
	defer f.Close()

	return DigestSized(path, f, snap.Size)
}

// DigestSized hashes r expecting exactly size bytes.
// At most size+1 bytes are read; a longer or shorter stream is reported in Error.
func DigestSized(name string, r io.Reader, size uint64) domain.Hashes {
	h := DigestReader(name, io.LimitReader(r, int64(size)+1))
	if h.Error == "" && h.Size != size {
		h.Error = fmt.Sprintf("size changed while reading: read %d bytes, expected %d", h.Size, size)
	}
	return h
}

// DigestReader hashes r in a single pass, recording name as the file.
// A read error stops the pass and is kept in Error next to the partial digests.
func DigestReader(name string, r io.Reader) domain.Hashes {
	h := domain.Hashes{File: name}

	md5h := md5.New()
	sha1h := sha1.New()
	sha256h := sha256.New()
	sha512h := sha512.New()
	w := io.MultiWriter(md5h, sha1h, sha256h, sha512h)

	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// hash.Hash writes never fail
			_, _ = w.Write(buf[:n])
			h.Size += uint64(n)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.Error = fmt.Sprintf("read failed after %d bytes: %v", h.Size, err)
			}
			break
		}
	}

	h.MD5 = sum(md5h)
	h.SHA1 = sum(sha1h)
	h.SHA256 = sum(sha256h)
	h.SHA512 = sum(sha512h)
	return h
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
