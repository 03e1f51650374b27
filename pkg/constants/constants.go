// Package constants defines system-wide constants for the PSN pseudonymization service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Algorithm Constants
// ================================================================================

// Algorithm identifies a pseudonym generation family.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "MD5"
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA2   Algorithm = "SHA2"
	AlgorithmSHA3   Algorithm = "SHA3"
	AlgorithmBLAKE3 Algorithm = "BLAKE3"
	AlgorithmXXHASH Algorithm = "XXHASH"

	// AlgorithmConsecutive numbers pseudonyms from a per-domain counter
	AlgorithmConsecutive Algorithm = "CONSECUTIVE"

	// AlgorithmRandom draws from a caller-supplied alphabet (letters+digits by default)
	AlgorithmRandom        Algorithm = "RANDOM"
	AlgorithmRandomNum     Algorithm = "RANDOM_NUM"
	AlgorithmRandomHex     Algorithm = "RANDOM_HEX"
	AlgorithmRandomLet     Algorithm = "RANDOM_LET"
	AlgorithmRandomSym     Algorithm = "RANDOM_SYM"
	AlgorithmRandomSymBIOS Algorithm = "RANDOM_SYM_BIOS"
)

// AllAlgorithms lists every supported algorithm in a stable order.
var AllAlgorithms = []Algorithm{
	AlgorithmMD5, AlgorithmSHA1, AlgorithmSHA2, AlgorithmSHA3, AlgorithmBLAKE3, AlgorithmXXHASH,
	AlgorithmConsecutive,
	AlgorithmRandom, AlgorithmRandomNum, AlgorithmRandomHex, AlgorithmRandomLet, AlgorithmRandomSym, AlgorithmRandomSymBIOS,
}

// IsValid reports whether a is one of the supported algorithms.
func (a Algorithm) IsValid() bool {
	for _, known := range AllAlgorithms {
		if a == known {
			return true
		}
	}
	return false
}

// IsHash reports whether a belongs to the content-hash family.
func (a Algorithm) IsHash() bool {
	switch a {
	case AlgorithmMD5, AlgorithmSHA1, AlgorithmSHA2, AlgorithmSHA3, AlgorithmBLAKE3, AlgorithmXXHASH:
		return true
	}
	return false
}

// IsRandom reports whether a belongs to the RANDOM* family.
func (a Algorithm) IsRandom() bool {
	switch a {
	case AlgorithmRandom, AlgorithmRandomNum, AlgorithmRandomHex, AlgorithmRandomLet, AlgorithmRandomSym, AlgorithmRandomSymBIOS:
		return true
	}
	return false
}

// IsDeterministic reports whether the same input always yields the same pseudonym body.
func (a Algorithm) IsDeterministic() bool {
	return a.IsHash()
}

// HashDigestLength returns the hex length of the full digest, or 0 for non-hash algorithms.
func (a Algorithm) HashDigestLength() int {
	switch a {
	case AlgorithmMD5:
		return 32
	case AlgorithmSHA1:
		return 40
	case AlgorithmSHA2, AlgorithmSHA3, AlgorithmBLAKE3:
		return 64
	case AlgorithmXXHASH:
		return 16
	}
	return 0
}

// ================================================================================
// Alphabet Constants
// ================================================================================

const (
	AlphabetHex     = "0123456789ABCDEF"
	AlphabetNumeric = "0123456789"
	AlphabetLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	AlphabetSymbols = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// AlphabetBIOS drops B, I, O and S, which are easily confused with 8, 1, 0 and 5.
	AlphabetBIOS = "ACDEFGHJKLMNPQRTUVWXYZ0123456789"
)

// DefaultAlphabet returns the alphabet fixed by an algorithm.
func DefaultAlphabet(a Algorithm) string {
	switch {
	case a.IsHash(), a == AlgorithmRandomHex:
		return AlphabetHex
	case a == AlgorithmConsecutive, a == AlgorithmRandomNum:
		return AlphabetNumeric
	case a == AlgorithmRandomLet:
		return AlphabetLetters
	case a == AlgorithmRandomSymBIOS:
		return AlphabetBIOS
	default:
		return AlphabetSymbols
	}
}

// RecordSeparator may never appear in an alphabet; batch exports use it between fields.
const RecordSeparator = ";"

// ================================================================================
// Domain Default Constants
// ================================================================================

const (
	DefaultAlgorithm                = AlgorithmRandomLet
	DefaultPseudonymLength          = 16
	DefaultPaddingCharacter         = "0"
	DefaultAddCheckDigit            = true
	DefaultLengthIncludesCheckDigit = false
	DefaultSaltLength               = 32
	DefaultMultiplePsnAllowed       = false
	DefaultConsecutiveValueCounter  = int64(1)
	DefaultEnforceStartDate         = false
	DefaultEnforceEndDate           = false
	DefaultDesiredSize              = int64(100_000_000)
	DefaultSuccessProbability       = 0.99999998

	// DefaultValidityDuration is 30 years of 365 days; leap days are ignored.
	DefaultValidityDuration = 30 * 365 * 24 * time.Hour

	// DefaultRetryBudget is the number of generation attempts for RANDOM* algorithms
	DefaultRetryBudget = 3

	// MinimumPseudonymLength is the floor applied to computed and requested lengths
	MinimumPseudonymLength = 2

	// DefaultMaxBatchSize bounds the number of items in a single batch request
	DefaultMaxBatchSize = 10_000
)

// ================================================================================
// Access Cache Constants
// ================================================================================

const (
	// AccessPathCacheTTL is the lifetime of a cached subject -> paths entry
	AccessPathCacheTTL = 10 * time.Minute

	// AccessPathCacheWaitTimeout bounds how long a reader waits on a held population lock
	AccessPathCacheWaitTimeout = 3 * time.Second

	// AccessPathCachePollInterval is the re-check interval while waiting
	AccessPathCachePollInterval = 50 * time.Millisecond

	// DomainConfigCacheTTL is the Redis lifetime of a cached effective domain config
	DomainConfigCacheTTL = 30 * time.Minute
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType represents different types of auditable events
type AuditEventType string

const (
	EventTypeDomainCreated    AuditEventType = "domain.created"
	EventTypeDomainUpdated    AuditEventType = "domain.updated"
	EventTypeDomainDeleted    AuditEventType = "domain.deleted"
	EventTypePseudonymCreated AuditEventType = "pseudonym.created"
	EventTypePseudonymUpdated AuditEventType = "pseudonym.updated"
	EventTypePseudonymDeleted AuditEventType = "pseudonym.deleted"
	EventTypeBatchCreated     AuditEventType = "pseudonym.batch_created"
	EventTypeBatchUpdated     AuditEventType = "pseudonym.batch_updated"
	EventTypeBatchDeleted     AuditEventType = "pseudonym.batch_deleted"
)

// ================================================================================
// Log Level Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for request-scoped context values
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeySubject   ContextKey = "subject"
	ContextKeyTraceID   ContextKey = "trace_id"
)

// ServiceName is used for tracing and metric namespaces
const ServiceName = "psn"
