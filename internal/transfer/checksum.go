package transfer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// ChecksumAlg names a per-chunk checksum algorithm.
type ChecksumAlg string

const (
	ChecksumNone     ChecksumAlg = "none"
	ChecksumMD5      ChecksumAlg = "md5"
	ChecksumCRC32C   ChecksumAlg = "crc32c"
	ChecksumXXHash64 ChecksumAlg = "xxhash64"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// ParseChecksumAlg resolves an algorithm name. The empty name selects md5.
func ParseChecksumAlg(name string) (ChecksumAlg, error) {
	switch ChecksumAlg(name) {
	case "", ChecksumMD5:
		return ChecksumMD5, nil
	case ChecksumCRC32C, ChecksumXXHash64, ChecksumNone:
		return ChecksumAlg(name), nil
	default:
		return "", fmt.Errorf("unknown checksum algorithm %q", name)
	}
}

// Checksum computes the hex checksum of data. ChecksumNone yields "".
func Checksum(alg ChecksumAlg, data []byte) (string, error) {
	switch alg {
	case ChecksumNone:
		return "", nil
	case ChecksumMD5, "":
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:]), nil
	case ChecksumCRC32C:
		return fmt.Sprintf("%08x", crc32.Checksum(data, crc32cTable)), nil
	case ChecksumXXHash64:
		return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", alg)
	}
}

// VerifyChecksum recomputes the checksum of data and compares it with want.
func VerifyChecksum(alg ChecksumAlg, data []byte, want string) error {
	if alg == ChecksumNone {
		return nil
	}
	got, err := Checksum(alg, data)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}
