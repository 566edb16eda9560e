package medgfx

import "errors"

var (
	// ErrFormat is returned when the input is not a valid ZIP archive, an
	// unknown record signature is met during the scan, or a ZIP64 size
	// placeholder has no matching extra field.
	ErrFormat = errors.New("medgfx: not a valid zip archive")

	// ErrTruncated is returned when the buffer ends before a fixed record,
	// a declared variable-length field, or an entry payload.
	ErrTruncated = errors.New("medgfx: unexpected end of archive")

	// ErrAlgorithm is returned when a compression method is not supported.
	ErrAlgorithm = errors.New("unsupported compression method")

	// ErrSizeMismatch is returned when extracted or decompressed data does
	// not match the uncompressed size declared in the header.
	ErrSizeMismatch = errors.New("medgfx: uncompressed size mismatch")

	// ErrChecksum is returned when checksum verification is enabled and the
	// extracted data does not match the header CRC32.
	ErrChecksum = errors.New("medgfx: checksum error")

	// ErrSizeLimit is returned when an entry or a decompressed stream
	// exceeds its configured size ceiling.
	ErrSizeLimit = errors.New("medgfx: decompressed size exceeds limit")

	// ErrDataLoss is returned when decompressing non-empty input yields
	// zero bytes. Imaging payloads are never legitimately empty.
	ErrDataLoss = errors.New("medgfx: decompression produced no data")

	// ErrEmptyData is returned when an empty or nil buffer is handed to the
	// codec.
	ErrEmptyData = errors.New("medgfx: empty data")

	// ErrFileNotFound is returned when the requested file is not present in
	// the archive.
	ErrFileNotFound = errors.New("medgfx: file not found")

	// ErrInsecurePath is returned when an entry path escapes the extraction
	// root (Zip Slip).
	ErrInsecurePath = errors.New("medgfx: insecure file path")
)
