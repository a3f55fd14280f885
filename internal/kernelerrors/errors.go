// Package kernelerrors defines the transaction core's error taxonomy.
//
// Every error the core returns carries a Kind so callers can distinguish
// "fix your request and retry" (Usage), "the table or the log is
// inconsistent" (Integrity), "someone else won the race, rebuild the
// transaction" (Concurrency), "the Iceberg-compat rule engine rejected this"
// (Compat), and "the storage engine misbehaved" (Environmental) without
// string-matching messages.
package kernelerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a *Error so callers can branch on category with errors.As
// instead of comparing strings.
type Kind int

const (
	// KindUsage covers caller mistakes: bad combinations of mode/op,
	// mismatched schema on REPLACE, unknown domain on remove, and similar.
	KindUsage Kind = iota
	// KindIntegrity covers violations of store-wide invariants: a gap in
	// the log, a negative watermark, duplicate domain-metadata in one
	// commit.
	KindIntegrity
	// KindConcurrency covers conflicts discovered by the resolver that can
	// never be rebased: protocol/metadata/txn/domain collisions, and
	// retries exhausted.
	KindConcurrency
	// KindCompat covers Iceberg-compatibility rule-engine rejections.
	KindCompat
	// KindEnvironmental covers I/O failures surfaced from the storage
	// engine; these are wrapped, never swallowed.
	KindEnvironmental
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindIntegrity:
		return "integrity"
	case KindConcurrency:
		return "concurrency"
	case KindCompat:
		return "compat"
	case KindEnvironmental:
		return "environmental"
	default:
		return "unknown"
	}
}

// Code names the specific condition within a Kind. Callers test an error
// for one of the Code constants below with Is(err, code), not by matching
// message strings.
type Code string

const (
	CodeTableAlreadyExists          Code = "TableAlreadyExists"
	CodeSchemaNotProvided           Code = "SchemaNotProvided"
	CodeCreateWithNonEmptyLocation  Code = "CreateTableWithNonEmptyLocation"
	CodeCreateExternalWithoutLog    Code = "CreateExternalWithoutLog"
	CodeReplaceTableNotFound        Code = "ReplaceTableNotFound"
	CodeDifferentSchema             Code = "DifferentSchema"
	CodeDifferentPartitioning       Code = "DifferentPartitioning"
	CodeDifferentClustering         Code = "DifferentClustering"
	CodeDifferentProperties         Code = "DifferentProperties"
	CodeDomainDoesNotExist          Code = "DomainDoesNotExist"
	CodeIllegalOverwriteSchema      Code = "IllegalOverwriteSchema"
	CodeReplacingClusteredWithPart  Code = "ReplacingClusteredWithPartitioned"
	CodeTransactionAlreadyAttempted Code = "TransactionAlreadyAttempted"

	CodeGapInLog                 Code = "GapInLog"
	CodeNegativeWatermark        Code = "NegativeWatermark"
	CodeDuplicateDomainInCommit  Code = "DuplicateDomainMetadataInCommit"
	CodeDomainTombstonedTwice    Code = "DomainMetadataTombstonedTwice"
	CodeCannotModifyAppendOnly   Code = "CannotModifyAppendOnlyTable"

	CodeProtocolChanged          Code = "ProtocolChanged"
	CodeMetadataChanged          Code = "MetadataChanged"
	CodeConcurrentTransaction    Code = "ConcurrentTransaction"
	CodeConcurrentDomainMetadata Code = "ConcurrentDomainMetadata"
	CodeConcurrentWrite          Code = "ConcurrentWriteException"

	CodeIncompatibleVersion    Code = "IcebergCompatIncompatibleVersion"
	CodeUnsupportedType        Code = "UnsupportedType"
	CodeUnsupportedPartition   Code = "UnsupportedPartitionType"
	CodeUnsupportedWidening    Code = "UnsupportedTypeWidening"
	CodeRequiredFeatureMissing Code = "RequiredFeatureMissing"
	CodeEnablingOnExisting     Code = "EnablingCompatOnExistingTable"
	CodeDisablingOnExisting    Code = "DisablingCompatOnExistingTable"
	CodeMissingNumRecordsStats Code = "MissingNumRecordsStats"
	CodeIncompatibleProperty   Code = "IncompatibleProperty"

	CodeInvalidDomainName             Code = "InvalidDomainName"
	CodeDomainMetadataFeatureMissing  Code = "DomainMetadataFeatureMissing"
	CodeSystemDomainReserved          Code = "SystemDomainReserved"
	CodeDomainAddRemoveConflict       Code = "DomainAddRemoveConflict"
	CodeInvalidRowTrackingWatermark   Code = "InvalidRowTrackingWatermark"
)

// Error is the concrete error type returned by every package in this
// module. It wraps an optional cause so errors.Unwrap / %w keep working.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, kernelerrors.New(sameCode, ...)) match on Code
// alone, the way callers actually want to compare these errors.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return e.Code == o.Code
	}
	return false
}

// New builds an *Error with the given kind/code/message.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, code Code, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Environmental wraps a raw storage-engine error without inventing a more
// specific Code; the caller only needs to know this was not one of ours.
func Environmental(cause error, format string, args ...any) *Error {
	return Wrap(KindEnvironmental, "EnvironmentalFailure", cause, format, args...)
}

// Is reports whether err (or something it wraps) carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
