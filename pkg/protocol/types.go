package protocol

// Stream event type constants carried in the "type" field of every event frame.
const (
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// Content item kinds for transcript entries.
const (
	ContentText  = "text"
	ContentImage = "image"
	ContentFile  = "file"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Multipart form field names for chunk uploads.
const (
	FieldFileID    = "fileId"
	FieldFileName  = "fileName"
	FieldIndex     = "index"
	FieldChunk     = "chunk"
	FieldChunkHash = "chunkHash"
)

// HeaderChunkHashAlg names the checksum algorithm used for FieldChunkHash.
const HeaderChunkHashAlg = "X-Chunk-Hash-Alg"

// HeaderRequestID is attached to every client request for log correlation.
const HeaderRequestID = "X-Request-ID"
