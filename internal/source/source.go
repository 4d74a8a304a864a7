// Package source reads raw product records for ingestion.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"storefront/internal/model"
)

type Source interface {
	Records(ctx context.Context) ([]model.RawRecord, error)
}

// Decode reads either a JSON array of records or a stream of JSON objects
// (one per line, as genproducts writes them).
func Decode(r io.Reader) ([]model.RawRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	dec := json.NewDecoder(br)
	if first == '[' {
		var recs []model.RawRecord
		if err := dec.Decode(&recs); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return recs, nil
	}
	var recs []model.RawRecord
	for {
		var rec model.RawRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(recs)+1, err)
		}
		recs = append(recs, rec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0], nil
		}
	}
}

// File reads records from a local file.
type File struct {
	Path string
}

func (f File) Records(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer fh.Close()
	return Decode(fh)
}

// HTTP fetches records from a URL serving JSON.
type HTTP struct {
	URL    string
	Client *http.Client
}

func (h HTTP) Records(ctx context.Context) ([]model.RawRecord, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch records: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return Decode(resp.Body)
}

// Static serves a fixed slice.
type Static []model.RawRecord

func (s Static) Records(ctx context.Context) ([]model.RawRecord, error) {
	return s, ctx.Err()
}
