package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kripteks/tradecore/internal/domain"
)

// Archiver implements domain.RunArchiver. The relational store keeps only a
// run's scalar metrics; the trade list and the candle snapshot are written
// here as JSONL objects keyed by the run ID:
//
//	runs/<id>/trades.jsonl
//	runs/<id>/candles.jsonl
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchiver creates an Archiver over the given blob store.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader) *Archiver {
	return &Archiver{writer: writer, reader: reader}
}

// ArchiveRun uploads the run's trades and candles. An empty trade list still
// produces an (empty) object so LoadRun can distinguish "no trades" from
// "never archived".
func (a *Archiver) ArchiveRun(ctx context.Context, result domain.BacktestResult) error {
	trades, err := marshalJSONL(result.Trades)
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s: marshal trades: %w", result.ID, err)
	}
	candles, err := marshalJSONL(result.Candles)
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s: marshal candles: %w", result.ID, err)
	}

	if err := a.writer.Put(ctx, runPath(result.ID, "trades"), bytes.NewReader(trades), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive run %s: upload trades: %w", result.ID, err)
	}
	if err := a.writer.Put(ctx, runPath(result.ID, "candles"), bytes.NewReader(candles), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive run %s: upload candles: %w", result.ID, err)
	}
	return nil
}

// LoadRun fetches the archived trades and candles for a run.
func (a *Archiver) LoadRun(ctx context.Context, id string) ([]domain.BacktestTrade, []domain.Candle, error) {
	trades, err := loadJSONL[domain.BacktestTrade](ctx, a.reader, runPath(id, "trades"))
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: load run %s: trades: %w", id, err)
	}
	candles, err := loadJSONL[domain.Candle](ctx, a.reader, runPath(id, "candles"))
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: load run %s: candles: %w", id, err)
	}
	return trades, candles, nil
}

// DeleteRun removes both snapshot objects for a run.
func (a *Archiver) DeleteRun(ctx context.Context, id string) error {
	if err := a.reader.Delete(ctx, runPath(id, "trades")); err != nil {
		return fmt.Errorf("s3blob: delete run %s: %w", id, err)
	}
	if err := a.reader.Delete(ctx, runPath(id, "candles")); err != nil {
		return fmt.Errorf("s3blob: delete run %s: %w", id, err)
	}
	return nil
}

func runPath(id, kind string) string {
	return fmt.Sprintf("runs/%s/%s.jsonl", id, kind)
}

// marshalJSONL serializes records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func loadJSONL[T any](ctx context.Context, reader domain.BlobReader, path string) ([]T, error) {
	body, err := reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var records []T
	dec := json.NewDecoder(bufio.NewReader(body))
	for {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("jsonl decode record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ domain.RunArchiver = (*Archiver)(nil)
