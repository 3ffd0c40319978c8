package scxmlgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"

	"github.com/comalice/scxmlgo/history"
)

// PersistenceBlob is the JSON-compatible round-trip shape from spec.md §6
// "serialize() -> blob": { state, activeStateChain (paths only),
// external/internal queues, macro/microStep counters, history }.
//
// Checksum is an enrichment (SPEC_FULL.md §2.2): a blake3 digest of every
// other field, computed on Serialize and verified by LoadFromPersistence so a
// corrupted blob fails fast rather than silently reconstructing a bogus
// session.
type PersistenceBlob struct {
	Version          int             `json:"version"`
	State            json.RawMessage `json:"state"`
	ActiveStateChain []string        `json:"activeStateChain"`
	ExternalEvents   []Event         `json:"externalEvents"`
	InternalEvents   []Event         `json:"internalEvents"`
	MacroStepCount   int             `json:"macroStepCount"`
	MicroStepCount   int             `json:"microStepCount"`
	History          []history.Entry `json:"history"`
	Checksum         string          `json:"checksum,omitempty"`
}

const persistenceBlobVersion = 1

// persistenceSchema is a structural JSON Schema for PersistenceBlob, used to
// reject a malformed blob before any field is trusted (SPEC_FULL.md §2.2:
// "structural validation of the persistence blob on deserialize").
const persistenceSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "activeStateChain", "macroStepCount", "microStepCount"],
	"properties": {
		"version": {"type": "integer"},
		"state": {},
		"activeStateChain": {"type": "array", "items": {"type": "string"}},
		"externalEvents": {"type": "array"},
		"internalEvents": {"type": "array"},
		"macroStepCount": {"type": "integer"},
		"microStepCount": {"type": "integer"},
		"history": {"type": "array"},
		"checksum": {"type": "string"}
	}
}`

var (
	schemaOnce    sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr     error
)

func persistenceValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("scxmlgo-persistence-blob.json", bytes.NewReader([]byte(persistenceSchema))); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("scxmlgo-persistence-blob.json")
	})
	return compiledSchema, schemaErr
}

func checksumFields(b PersistenceBlob) string {
	b.Checksum = ""
	raw, _ := json.Marshal(b)
	sum := blake3.Sum256(raw)
	return fmt.Sprintf("%x", sum)
}

// Serialize implements spec.md §6 "serialize() -> blob".
func (it *Interpreter) Serialize() ([]byte, error) {
	blob := PersistenceBlob{
		Version:          persistenceBlobVersion,
		ActiveStateChain:  append([]string(nil), it.activePathsOrdered()...),
		ExternalEvents:    it.externalQueue.snapshot(),
		InternalEvents:    it.internalQueue.snapshot(),
		MacroStepCount:    it.macroStepCount,
		MicroStepCount:    it.microStepCount,
		History:           it.ledger.All(),
	}
	if it.state != nil {
		blob.State = json.RawMessage(it.state.RawJSON())
	}
	blob.Checksum = checksumFields(blob)

	out, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("scxmlgo: serialize: %w", err)
	}
	return out, nil
}

// LoadFromPersistence implements spec.md §6's "constructor with
// persistence": parses root fresh, validates and checksums the blob, then
// reconstructs counters, queues (FIFO, per SPEC_FULL.md §9's decided open
// question), ledger, and active chain by path lookup into the freshly
// parsed document.
func LoadFromPersistence(root *Node, blob []byte, opts ...Option) (*Interpreter, error) {
	schema, err := persistenceValidator()
	if err != nil {
		return nil, fmt.Errorf("scxmlgo: persistence schema: %w", err)
	}
	var generic any
	if err := json.Unmarshal(blob, &generic); err != nil {
		return nil, fmt.Errorf("scxmlgo: persistence blob: invalid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("scxmlgo: persistence blob failed structural validation: %w", err)
	}

	var pb PersistenceBlob
	if err := json.Unmarshal(blob, &pb); err != nil {
		return nil, fmt.Errorf("scxmlgo: persistence blob: %w", err)
	}
	want := checksumFields(pb)
	if pb.Checksum != "" && pb.Checksum != want {
		return nil, fmt.Errorf("scxmlgo: persistence blob checksum mismatch: got %s want %s", pb.Checksum, want)
	}

	it, err := Load(root, opts...)
	if err != nil {
		return nil, err
	}

	it.state = NewInternalState("", it.index.Root().Datamodel)
	if len(pb.State) > 0 {
		it.state.LoadRawJSON(pb.State)
	}

	it.active = nil
	for _, p := range pb.ActiveStateChain {
		if _, ok := it.index.Lookup(p); ok {
			it.active = append(it.active, p)
		}
	}

	it.externalQueue.restore(pb.ExternalEvents)
	it.internalQueue.restore(pb.InternalEvents)
	it.macroStepCount = pb.MacroStepCount
	it.microStepCount = pb.MicroStepCount
	it.ledger.Import(pb.History)

	return it, nil
}

// Resume continues a deserialized Interpreter's macrostep loop (there is no
// separate "resume" verb in spec.md: "After execute returns, subsequent
// addEvent calls on a stable machine restart macrostep" — Resume exists so
// a freshly-deserialized Interpreter, which never called Execute, has an
// explicit way to drain its restored queues without requiring a synthetic
// event).
func (it *Interpreter) Resume(ctx context.Context) Snapshot {
	it.mu.Lock()
	it.running = true
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.running = false
		it.mu.Unlock()
	}()
	if it.ctxBase == nil {
		it.ctxBase = ctx
	}
	it.macrostep()
	return it.snapshot()
}
