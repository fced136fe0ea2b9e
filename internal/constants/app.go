package constants

import (
	"time"
)

// Upload endpoint contract
const (
	// UploadPath - path of the multipart upload endpoint relative to the base URL
	UploadPath = "/upload"

	// DeletePath - path of the deletion endpoint relative to the base URL
	DeletePath = "/delete"

	// UploadFormField - multipart field carrying the file bytes
	UploadFormField = "file"

	// HeaderName - side-channel header carrying the content id as canonical name
	HeaderName = "X-Name"

	// HeaderRequestedWith - header marking the request as a background (XHR-style) request
	HeaderRequestedWith = "X-Requested-With"

	// RequestedWithValue - value sent in HeaderRequestedWith
	RequestedWithValue = "XMLHttpRequest"
)

// Intake defaults
const (
	// DefaultMaxFileSize - largest file accepted by the default validator (20 MB)
	DefaultMaxFileSize = 20 * 1024 * 1024

	// DefaultAllowedExtensions - extensions accepted by the default validator
	DefaultAllowedExtensions = "jpg;jpeg;png;gif;webp;pdf;txt;csv;doc;docx;xls;xlsx;zip"

	// DefaultDirPageSize - entries requested per directory listing page
	DefaultDirPageSize = 100

	// DuplicateMessage - notification shown when a file is already attached
	DuplicateMessage = "This file is already attached"
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// CLI Concurrency Limits
const (
	// DefaultMaxConcurrent - default concurrent file operations
	DefaultMaxConcurrent = 5

	// MinMaxConcurrent - minimum concurrent operations (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent operations allowed
	MaxMaxConcurrent = 10
)

// Deletion relay
const (
	// DeleteQueueSize - pending deletion batches buffered by the async relay
	DeleteQueueSize = 64

	// DeleteTimeout - timeout for a single remote deletion call
	DeleteTimeout = 30 * time.Second

	// DeleteRetryMax - retries for HTTP deletion notifications
	DeleteRetryMax = 3
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// UploadTimeout - timeout for one upload request (30 minutes)
	UploadTimeout = 30 * time.Minute
)

// UI Updates
const (
	// ProgressRefreshRate - refresh rate of terminal progress bars
	ProgressRefreshRate = 300 * time.Millisecond
)

// Watch folder
const (
	// WatchSettleDelay - time a newly created path must be quiet before it is processed
	WatchSettleDelay = 500 * time.Millisecond
)

// Reference store
const (
	// DiskSpaceSafetyMargin - free space required per upload, as a multiple of its size
	DiskSpaceSafetyMargin = 1.1

	// CopyBufferSize - size of pooled buffers used to stream uploads to disk (256 KB)
	CopyBufferSize = 256 * 1024
)
