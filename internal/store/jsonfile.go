package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// JSONFileStore writes one pretty-printed document per record under
// <dir>/<collection>/<identifier>.json. A failed target gets an
// {"error": ...} file at the same path instead.
type JSONFileStore struct {
	dir string
}

// NewJSONFile creates the export directory if needed
func NewJSONFile(dir string) (*JSONFileStore, error) {
	if dir == "" {
		return nil, eris.New("json: an output directory was not specified")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "json: create %s", dir)
	}
	return &JSONFileStore{dir: dir}, nil
}

// Dir returns the export root
func (j *JSONFileStore) Dir() string {
	return j.dir
}

// Path returns the file a key of the given kind is written to. The key is
// normalized first so a target and the record it resolves to share a file.
func (j *JSONFileStore) Path(kind models.SourceKind, key string) string {
	collection := kind.Collection()
	if collection == "" {
		collection = "unknown"
	}
	return filepath.Join(j.dir, collection, FileName(kind.NormalizeKey(key))+".json")
}

// Upsert overwrites the record's file, replacing any error file
func (j *JSONFileStore) Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error) {
	if err := validate(rec); err != nil {
		return Ack{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ack{}, fault.FromContext(fault.DomainPersistence, err)
	}

	path := j.Path(rec.SourceKind, rec.Identifier)
	_, statErr := os.Stat(path)
	inserted := errors.Is(statErr, os.ErrNotExist)

	if err := writeJSON(path, rec.Document()); err != nil {
		return Ack{}, err
	}
	return Ack{Collection: rec.Collection(), Identifier: rec.Identifier, Inserted: inserted}, nil
}

// WriteError records a failed target in place of its document
func (j *JSONFileStore) WriteError(target models.ExtractionTarget, cause error) error {
	path := j.Path(target.SourceKind, target.Key)
	if err := writeJSON(path, map[string]string{"error": cause.Error()}); err != nil {
		return err
	}
	log.Debug().Str("path", path).Msg("Wrote error file")
	return nil
}

// ClearError removes the error file left by an earlier failure of target.
// A document stored at the same path is left alone.
func (j *JSONFileStore) ClearError(target models.ExtractionTarget) error {
	path := j.Path(target.SourceKind, target.Key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fault.Persistence(fault.KindConnectionLost, "read "+path, err)
	}
	if !isErrorFile(data) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fault.Persistence(fault.KindConnectionLost, "remove "+path, err)
	}
	log.Debug().Str("path", path).Msg("Removed stale error file")
	return nil
}

func isErrorFile(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["error"]
	return ok && len(doc) == 1
}

// Get reads a document back. Error files are reported as not found.
func (j *JSONFileStore) Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error) {
	path := j.Path(kind, identifier)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fault.Persistence(fault.KindConnectionLost, "read "+path, err)
	}

	attrs := models.NewAttributes()
	if err := json.Unmarshal(data, attrs); err != nil {
		return nil, eris.Wrapf(err, "json: decode %s", path)
	}
	if _, isErr := attrs.Get("error"); isErr && attrs.Len() == 1 {
		return nil, ErrNotFound
	}

	doc := &models.StoredDocument{SourceKind: kind, Identifier: identifier, Attributes: attrs}
	if info, err := os.Stat(path); err == nil {
		doc.FetchedAt = info.ModTime().UTC()
	}
	return doc, nil
}

// Close is a no-op
func (j *JSONFileStore) Close() error {
	return nil
}

// writeJSON writes v with 4-space indent through a temp file and rename so
// readers never see a partial document
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fault.Persistence(fault.KindConstraintViolation, "unserializable document", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Persistence(fault.KindConnectionLost, "create "+filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fault.Persistence(fault.KindConnectionLost, "create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fault.Persistence(fault.KindConnectionLost, "write "+tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Persistence(fault.KindConnectionLost, "close "+tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fault.Persistence(fault.KindConnectionLost, "rename to "+path, err)
	}
	return nil
}

// FileName turns an identifier into a safe file stem. Lossy names get a
// hash suffix so distinct identifiers never share a file.
func FileName(key string) string {
	name := strings.TrimSpace(key)
	if u := strings.Index(name, "://"); u >= 0 {
		name = name[u+3:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = strings.Trim(strings.ReplaceAll(b.String(), "..", "_"), "._")
	if len(name) > 150 {
		name = name[:150]
	}

	if name != key {
		h := fnv.New32a()
		h.Write([]byte(key))
		suffix := fmt.Sprintf("%08x", h.Sum32())
		if name == "" {
			return suffix
		}
		return name + "_" + suffix
	}
	return name
}
