package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stay uniform across the upload, ingestion,
// search and chat paths.
const (
	// Request correlation
	KeyRequestID = "request_id" // HTTP request correlation ID
	KeyOperation = "operation"  // Logical operation name
	KeyClientIP  = "client_ip"  // Client IP address

	// Identity
	KeyUserID   = "user_id"  // Database ID of the acting user
	KeyUsername = "username" // Login name of the acting user
	KeyRole     = "role"     // USER or ADMIN

	// Documents & chunks
	KeyFileMD5    = "file_md5"    // Fingerprint of the whole file
	KeyFileName   = "file_name"   // Original file name
	KeyChunkIndex = "chunk_index" // Zero-based chunk index
	KeyChunkID    = "chunk_id"    // One-based passage ID
	KeyTotalSize  = "total_size"  // Declared file size in bytes
	KeyObjectKey  = "object_key"  // Object-store key
	KeyBucket     = "bucket"      // Object-store bucket

	// Tags & permissions
	KeyOrgTag   = "org_tag"   // Scope tag of a resource
	KeyTagID    = "tag_id"    // Organization tag ID
	KeyIsPublic = "is_public" // Public visibility flag

	// Pipeline
	KeyTopic     = "topic"      // Broker topic
	KeyPartition = "partition"  // Broker partition
	KeyBatchSize = "batch_size" // Embedding batch size
	KeyPassages  = "passages"   // Number of passages
	KeyIndex     = "index"      // Search index name
	KeyModel     = "model"      // Embedding or chat model tag

	// Chat
	KeySessionID      = "session_id"      // WebSocket session handle
	KeyConversationID = "conversation_id" // Conversation UUID

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeyCount      = "count"       // Generic count
	KeyStatus     = "status"      // Status code or state name
)
