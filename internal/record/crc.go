package record

import "hash/crc32"

// CalculateCRC computes the IEEE CRC32 checksum of a frame prefix (both length
// fields, key and value bytes). The result is a uint32, so the checksum is
// always reduced by masking to 32 bits.
func CalculateCRC(frame []byte) uint32 {
	return crc32.ChecksumIEEE(frame)
}

// ValidateCRC returns true if the provided checksum matches the computed CRC32 of the frame prefix
func ValidateCRC(frame []byte, checksum uint32) bool {
	return CalculateCRC(frame) == checksum
}
