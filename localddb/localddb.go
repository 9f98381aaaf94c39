// Package localddb is an in-process DynamoDB stand-in for integration
// tests. It speaks the same JSON wire protocol the client emits, verifies
// request signatures against a known key, and stores items in badger with
// an order-preserving key encoding so queries paginate in real sort order.
//
// The server is an http.Handler; wrap it in httptest.NewServer and point a
// client at the resulting URL.
package localddb

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/creds"
)

// Options configures a server.
type Options struct {
	// Key is the credential every request must be signed with. A zero key
	// disables signature verification.
	Key creds.Key
	// Region of the credential scope. Defaults to us-east-1.
	Region string
	// Path to the badger directory. Empty means in-memory.
	Path string
	// Logger receives server and badger logs. The zero logger discards.
	Logger zerolog.Logger
}

// Server hosts a set of tables over the DynamoDB JSON protocol.
type Server struct {
	key    creds.Key
	region string
	log    zerolog.Logger
	db     *badger.DB
	tables map[string]TableDef

	mu           sync.Mutex
	throttleNext int
	failNext     int
}

// New opens the backing store and registers the given tables.
func New(opts Options, defs ...TableDef) (*Server, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithLogger(badgerLogger{opts.Logger})
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	tables := make(map[string]TableDef, len(defs))
	for _, def := range defs {
		if err := def.validate(); err != nil {
			db.Close()
			return nil, err
		}
		tables[def.Name] = def
	}
	return &Server{
		key:    opts.Key,
		region: region,
		log:    opts.Logger,
		db:     db,
		tables: tables,
	}, nil
}

// Close releases the backing store.
func (s *Server) Close() error {
	return s.db.Close()
}

// ThrottleNext makes the next n requests fail with
// ProvisionedThroughputExceededException, for retry tests.
func (s *Server) ThrottleNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttleNext = n
}

// FailNext makes the next n requests fail with a 500 InternalServerError.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Server) takeFault() *wireError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.throttleNext > 0 {
		s.throttleNext--
		return &wireError{
			status:  400,
			name:    "ProvisionedThroughputExceededException",
			message: "The level of configured provisioned throughput for the table was exceeded",
		}
	}
	if s.failNext > 0 {
		s.failNext--
		return &wireError{status: 500, name: "InternalServerError", message: "Internal server error"}
	}
	return nil
}

func (s *Server) getTable(name string) (TableDef, *wireError) {
	def, ok := s.tables[name]
	if !ok {
		return TableDef{}, &wireError{
			status:  400,
			name:    "ResourceNotFoundException",
			message: "Requested resource not found",
		}
	}
	return def, nil
}

// Items are stored as their wire-form JSON.

func marshalItem(item attr.Item) ([]byte, error) {
	return json.Marshal(item)
}

func unmarshalItem(data []byte) (attr.Item, error) {
	var item attr.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// readItem fetches and decodes one item within a transaction. A missing key
// yields a nil item and no error.
func readItem(txn *badger.Txn, key []byte) (attr.Item, error) {
	entry, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item attr.Item
	err = entry.Value(func(val []byte) error {
		var err error
		item, err = unmarshalItem(val)
		return err
	})
	return item, err
}
