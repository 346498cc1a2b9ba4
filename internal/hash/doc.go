// Package hash provides the checksum used to verify stored fragment payloads.
//
// CRC32-Castagnoli is hardware accelerated on x86 (SSE4.2) and ARM64.
package hash
