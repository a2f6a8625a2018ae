// Package signatureTable builds and reads precomputed lookup tables of public signatures.
//
// A table is a gzip compressed text file with one line per hash:
//
//	a9059cbb:transfer(address,uint256)
//
// Signatures that hash to the same value share a line, newest first.
package signatureTable

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	FunctionTableFile = "fns.abisigs.gz"
	EventTableFile    = "evts.abisigs.gz"

	separator = ":"
)

// FileNameForKind returns the conventional table file name of a kind.
func FileNameForKind(kind abi.Kind) string {
	if kind == abi.KindEvent {
		return EventTableFile
	}
	return FunctionTableFile
}

type Entry struct {
	Hash       string
	Signatures []string
}

type Table struct {
	kind    abi.Kind
	entries map[string][]string
	// hashes in first-seen order so written tables are stable
	order  []string
	logger *zap.Logger
}

func NewTable(kind abi.Kind, logger *zap.Logger) *Table {
	return &Table{
		kind:    kind,
		entries: make(map[string][]string),
		logger:  logger,
	}
}

// Build hashes every signature into a new table.
func Build(kind abi.Kind, signatures []string, logger *zap.Logger) (*Table, error) {
	t := NewTable(kind, logger)
	for _, sig := range signatures {
		if err := t.Add(sig); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Kind() abi.Kind {
	return t.kind
}

// Add hashes a signature into the table. Exact duplicates are ignored; a different signature with the
// same hash is kept in front of the existing ones and logged.
func (t *Table) Add(signature string) error {
	if _, err := abi.ParseSignature(signature, t.kind); err != nil {
		return err
	}
	if strings.Contains(signature, separator) {
		return fmt.Errorf("%w: %s contains %q", abi.ErrInvalidSignatureFormat, signature, separator)
	}
	t.addHashed(abi.ComputeSignatureHash(signature, t.kind), signature)
	return nil
}

func (t *Table) addHashed(hash string, signature string) {
	existing, ok := t.entries[hash]
	if !ok {
		t.entries[hash] = []string{signature}
		t.order = append(t.order, hash)
		return
	}
	for _, s := range existing {
		if s == signature {
			return
		}
	}
	t.logger.Sugar().Warnw("Signature hash collision",
		zap.String("kind", string(t.kind)),
		zap.String("hash", hash),
		zap.String("signature", signature),
		zap.Strings("existing", existing),
	)
	t.entries[hash] = append([]string{signature}, existing...)
}

// Lookup returns the signatures of a hash, nil when unknown.
func (t *Table) Lookup(hash string) []string {
	sigs, ok := t.entries[abi.NormalizeHash(hash)]
	if !ok {
		return nil
	}
	return append([]string(nil), sigs...)
}

func (t *Table) Len() int {
	return len(t.order)
}

// Entries returns every entry in first-seen order.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.order))
	for _, hash := range t.order {
		entries = append(entries, Entry{Hash: hash, Signatures: append([]string(nil), t.entries[hash]...)})
	}
	return entries
}

// Collisions returns the entries holding more than one signature.
func (t *Table) Collisions() []Entry {
	var collisions []Entry
	for _, e := range t.Entries() {
		if len(e.Signatures) > 1 {
			collisions = append(collisions, e)
		}
	}
	return collisions
}

// Write writes the table gzip compressed.
func (t *Table) Write(w io.Writer) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(gz)
	for _, hash := range t.order {
		line := hash + separator + strings.Join(t.entries[hash], separator) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return errors.Wrap(err, "failed to write signature table")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush signature table")
	}
	return gz.Close()
}

func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Read parses a gzip compressed table.
func Read(r io.Reader, kind abi.Kind, logger *zap.Logger) (*Table, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "signature table is not gzip compressed")
	}
	defer gz.Close()

	t := NewTable(kind, logger)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, separator)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid signature table line %d: %q", lineNo, line)
		}
		hash := abi.NormalizeHash(parts[0])
		if _, ok := t.entries[hash]; !ok {
			t.order = append(t.order, hash)
		}
		t.entries[hash] = parts[1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read signature table")
	}
	return t, nil
}

func ReadFile(path string, kind abi.Kind, logger *zap.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return Read(f, kind, logger)
}

// ReadSignatureList reads plain text signatures, one per line. Blank lines and lines starting with #
// are skipped.
func ReadSignatureList(r io.Reader) ([]string, error) {
	var sigs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sigs = append(sigs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sigs, nil
}

// SignatureWriter persists the signatures of a hash, e.g. a storage.EthloggerStore.
type SignatureWriter interface {
	SaveSignatures(ctx context.Context, kind abi.Kind, hash string, signatures []string) error
}

// Import writes every entry of the table and returns the number of entries written.
func (t *Table) Import(ctx context.Context, store SignatureWriter) (int, error) {
	written := 0
	for _, hash := range t.order {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := store.SaveSignatures(ctx, t.kind, hash, t.entries[hash]); err != nil {
			return written, errors.Wrapf(err, "failed to import signatures of %s", hash)
		}
		written++
	}
	return written, nil
}
