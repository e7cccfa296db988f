package domain

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// HashAlgorithm names the digest used to verify a finished transfer.
type HashAlgorithm string

const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
)

// ParseHashAlgorithm accepts the common spellings ("SHA-256", "sha256", "MD5").
// An empty string maps to MD5, which is what mod hosts publish.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "") {
	case "", "md5":
		return HashMD5, nil
	case "sha1":
		return HashSHA1, nil
	case "sha256":
		return HashSHA256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedHash, s)
	}
}

func (a HashAlgorithm) New() (hash.Hash, error) {
	switch a {
	case HashMD5, "":
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, string(a))
	}
}

// CalculateHash streams r through the selected digest and returns it hex encoded.
func CalculateHash(r io.Reader, algo HashAlgorithm) (string, error) {
	h, err := algo.New()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateFileHash hashes the full contents of the file at path.
func CalculateFileHash(path string, algo HashAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return CalculateHash(f, algo)
}

// HashesEqual compares two hex digests ignoring case and surrounding space.
func HashesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
