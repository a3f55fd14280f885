// Package actioncodec converts between the typed Action variants in
// internal/types and the single-row-union JSON record the commit log
// actually stores on disk, one record per line.
package actioncodec

import (
	"fmt"
	"io"
	"time"

	"github.com/deltakernel/txncore/internal/jsonl"
	"github.com/deltakernel/txncore/internal/types"
)

// wireProtocol/wireMetadata/... mirror the on-disk shapes. They exist
// separately from types.Protocol etc. so the wire format's field names and
// optionality are decoupled from the in-memory model.
type wireProtocol struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures,omitempty"`
	WriterFeatures   []string `json:"writerFeatures,omitempty"`
}

type wireMetadata struct {
	ID                string            `json:"id"`
	Name              string            `json:"name,omitempty"`
	Description       string            `json:"description,omitempty"`
	SchemaString      string            `json:"schemaString"`
	PartitionColumns  []string          `json:"partitionColumns"`
	ClusteringColumns []string          `json:"clusteringColumns,omitempty"`
	Configuration     map[string]string `json:"configuration"`
	CreatedTime       int64             `json:"createdTime"`
}

type wireAdd struct {
	Path                    string            `json:"path"`
	PartitionValues         map[string]string `json:"partitionValues"`
	Size                    int64             `json:"size"`
	ModificationTime        int64             `json:"modificationTime"`
	DataChange              bool              `json:"dataChange"`
	Stats                   string            `json:"stats,omitempty"`
	Tags                    map[string]string `json:"tags,omitempty"`
	BaseRowID               *int64            `json:"baseRowId,omitempty"`
	DefaultRowCommitVersion *int64            `json:"defaultRowCommitVersion,omitempty"`
}

type wireRemove struct {
	Path                 string            `json:"path"`
	DeletionTimestamp    int64             `json:"deletionTimestamp"`
	DataChange           bool              `json:"dataChange"`
	ExtendedFileMetadata bool              `json:"extendedFileMetadata,omitempty"`
	PartitionValues      map[string]string `json:"partitionValues,omitempty"`
	Size                 *int64            `json:"size,omitempty"`
}

type wireTxn struct {
	AppID       string `json:"appId"`
	Version     int64  `json:"version"`
	LastUpdated *int64 `json:"lastUpdated,omitempty"`
}

type wireCommitInfo struct {
	InCommitTimestamp *int64            `json:"inCommitTimestamp,omitempty"`
	Timestamp         int64             `json:"timestamp"`
	EngineInfo        string            `json:"engineInfo,omitempty"`
	Operation         string            `json:"operation"`
	OperationParams   map[string]string `json:"operationParameters,omitempty"`
	IsBlindAppend     bool              `json:"isBlindAppend"`
	TxnID             string            `json:"txnId,omitempty"`
	OperationMetrics  map[string]string `json:"operationMetrics,omitempty"`
}

type wireDomainMetadata struct {
	Domain        string `json:"domain"`
	Configuration string `json:"configuration"`
	Removed       bool   `json:"removed,omitempty"`
}

// wireRecord is the single-row-union shape: exactly one field is non-nil.
type wireRecord struct {
	Protocol       *wireProtocol       `json:"protocol,omitempty"`
	Metadata       *wireMetadata       `json:"metaData,omitempty"`
	Add            *wireAdd            `json:"add,omitempty"`
	Remove         *wireRemove         `json:"remove,omitempty"`
	Txn            *wireTxn            `json:"txn,omitempty"`
	CommitInfo     *wireCommitInfo     `json:"commitInfo,omitempty"`
	DomainMetadata *wireDomainMetadata `json:"domainMetadata,omitempty"`
}

// Encode converts a types.Action to its wire record. Returns an error if a
// is not a single-variant Action.
func Encode(a types.Action) (wireRecord, error) {
	if !a.IsSingleVariant() {
		return wireRecord{}, fmt.Errorf("action must populate exactly one variant, got tag %q", a.Tag())
	}
	var rec wireRecord
	switch {
	case a.Protocol != nil:
		rec.Protocol = &wireProtocol{
			MinReaderVersion: a.Protocol.MinReaderVersion,
			MinWriterVersion: a.Protocol.MinWriterVersion,
			ReaderFeatures:   a.Protocol.ReaderFeatures,
			WriterFeatures:   a.Protocol.WriterFeatures,
		}
	case a.Metadata != nil:
		schemaJSON, err := encodeSchema(a.Metadata.Schema)
		if err != nil {
			return wireRecord{}, fmt.Errorf("encode schema: %w", err)
		}
		rec.Metadata = &wireMetadata{
			ID:                a.Metadata.ID,
			Name:              a.Metadata.Name,
			Description:       a.Metadata.Description,
			SchemaString:      schemaJSON,
			PartitionColumns:  a.Metadata.PartitionColumns,
			ClusteringColumns: a.Metadata.ClusteringColumns,
			Configuration:     a.Metadata.Configuration,
			CreatedTime:       types.NowMillis(a.Metadata.CreatedTime),
		}
	case a.Add != nil:
		rec.Add = &wireAdd{
			Path:                    a.Add.Path,
			PartitionValues:         a.Add.PartitionValues,
			Size:                    a.Add.Size,
			ModificationTime:        a.Add.ModificationTime,
			DataChange:              a.Add.DataChange,
			Stats:                   a.Add.Stats,
			Tags:                    a.Add.Tags,
			BaseRowID:               a.Add.BaseRowID,
			DefaultRowCommitVersion: a.Add.DefaultRowCommitVersion,
		}
	case a.Remove != nil:
		rec.Remove = &wireRemove{
			Path:                 a.Remove.Path,
			DeletionTimestamp:    a.Remove.DeletionTimestamp,
			DataChange:           a.Remove.DataChange,
			ExtendedFileMetadata: a.Remove.ExtendedFileMetadata,
			PartitionValues:      a.Remove.PartitionValues,
			Size:                 a.Remove.Size,
		}
	case a.Txn != nil:
		rec.Txn = &wireTxn{AppID: a.Txn.AppID, Version: a.Txn.Version, LastUpdated: a.Txn.LastUpdated}
	case a.CommitInfo != nil:
		rec.CommitInfo = &wireCommitInfo{
			InCommitTimestamp: a.CommitInfo.InCommitTimestamp,
			Timestamp:         a.CommitInfo.Timestamp,
			EngineInfo:        a.CommitInfo.EngineInfo,
			Operation:         a.CommitInfo.Operation,
			OperationParams:   a.CommitInfo.OperationParams,
			IsBlindAppend:     a.CommitInfo.IsBlindAppend,
			TxnID:             a.CommitInfo.TxnID,
			OperationMetrics:  a.CommitInfo.OperationMetrics,
		}
	case a.DomainMetadata != nil:
		rec.DomainMetadata = &wireDomainMetadata{
			Domain:        a.DomainMetadata.Domain,
			Configuration: a.DomainMetadata.Configuration,
			Removed:       a.DomainMetadata.Removed,
		}
	}
	return rec, nil
}

// Decode converts a wire record back to a types.Action.
func Decode(rec wireRecord) (types.Action, error) {
	switch {
	case rec.Protocol != nil:
		return types.ActionOfProtocol(types.Protocol{
			MinReaderVersion: rec.Protocol.MinReaderVersion,
			MinWriterVersion: rec.Protocol.MinWriterVersion,
			ReaderFeatures:   rec.Protocol.ReaderFeatures,
			WriterFeatures:   rec.Protocol.WriterFeatures,
		}), nil
	case rec.Metadata != nil:
		schema, err := decodeSchema(rec.Metadata.SchemaString)
		if err != nil {
			return types.Action{}, fmt.Errorf("decode schema: %w", err)
		}
		return types.ActionOfMetadata(types.Metadata{
			ID:                rec.Metadata.ID,
			Name:              rec.Metadata.Name,
			Description:       rec.Metadata.Description,
			Schema:            schema,
			PartitionColumns:  rec.Metadata.PartitionColumns,
			ClusteringColumns: rec.Metadata.ClusteringColumns,
			Configuration:     rec.Metadata.Configuration,
			CreatedTime:       time.UnixMilli(rec.Metadata.CreatedTime).UTC(),
		}), nil
	case rec.Add != nil:
		return types.ActionOfAdd(types.Add{
			Path:                    rec.Add.Path,
			PartitionValues:         rec.Add.PartitionValues,
			Size:                    rec.Add.Size,
			ModificationTime:        rec.Add.ModificationTime,
			DataChange:              rec.Add.DataChange,
			Stats:                   rec.Add.Stats,
			Tags:                    rec.Add.Tags,
			BaseRowID:               rec.Add.BaseRowID,
			DefaultRowCommitVersion: rec.Add.DefaultRowCommitVersion,
		}), nil
	case rec.Remove != nil:
		return types.ActionOfRemove(types.Remove{
			Path:                 rec.Remove.Path,
			DeletionTimestamp:    rec.Remove.DeletionTimestamp,
			DataChange:           rec.Remove.DataChange,
			ExtendedFileMetadata: rec.Remove.ExtendedFileMetadata,
			PartitionValues:      rec.Remove.PartitionValues,
			Size:                 rec.Remove.Size,
		}), nil
	case rec.Txn != nil:
		return types.ActionOfTxn(types.Txn{AppID: rec.Txn.AppID, Version: rec.Txn.Version, LastUpdated: rec.Txn.LastUpdated}), nil
	case rec.CommitInfo != nil:
		return types.ActionOfCommitInfo(types.CommitInfo{
			InCommitTimestamp: rec.CommitInfo.InCommitTimestamp,
			Timestamp:         rec.CommitInfo.Timestamp,
			EngineInfo:        rec.CommitInfo.EngineInfo,
			Operation:         rec.CommitInfo.Operation,
			OperationParams:   rec.CommitInfo.OperationParams,
			IsBlindAppend:     rec.CommitInfo.IsBlindAppend,
			TxnID:             rec.CommitInfo.TxnID,
			OperationMetrics:  rec.CommitInfo.OperationMetrics,
		}), nil
	case rec.DomainMetadata != nil:
		return types.ActionOfDomainMetadata(types.DomainMetadata{
			Domain:        rec.DomainMetadata.Domain,
			Configuration: rec.DomainMetadata.Configuration,
			Removed:       rec.DomainMetadata.Removed,
		}), nil
	default:
		return types.Action{}, fmt.Errorf("wire record carries no recognized action variant")
	}
}

// EncodeAll writes a full commit-file action stream, one line per action,
// in the order given by actions (callers are responsible for canonical
// ordering; see internal/txn).
func EncodeAll(w io.Writer, actions []types.Action) error {
	enc := jsonl.NewEncoder(w)
	for i, a := range actions {
		rec, err := Encode(a)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// DecodeAll reads a full commit file into its Action stream, in file order.
func DecodeAll(r io.Reader) ([]types.Action, error) {
	recs, err := jsonl.DecodeInto[wireRecord](r)
	if err != nil {
		return nil, err
	}
	actions := make([]types.Action, len(recs))
	for i, rec := range recs {
		a, err := Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("action at line %d: %w", i+1, err)
		}
		actions[i] = a
	}
	return actions, nil
}
