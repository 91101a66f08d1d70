package domain

// Hashes is the digest record computed for a file observed by the eBPF programs.
// When Error is set the digests must not be consumed.
type Hashes struct {
	File   string `json:"file" yaml:"file"`
	MD5    string `json:"md5" yaml:"md5"`
	SHA1   string `json:"sha1" yaml:"sha1"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	SHA512 string `json:"sha512" yaml:"sha512"`
	Size   uint64 `json:"size" yaml:"size"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Valid reports whether the digests describe a complete read of the file
func (h *Hashes) Valid() bool {
	return h.Error == ""
}

// IOCs returns the values usable as indicators of compromise
func (h *Hashes) IOCs() []string {
	return []string{h.File, h.MD5, h.SHA1, h.SHA256, h.SHA512}
}
