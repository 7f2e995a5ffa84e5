package store

import (
	"database/sql"
	"encoding/json"
	"log"

	_ "github.com/lib/pq"
)

// Decoder turns a stored JSONB document back into the collection's typed read model
type Decoder func(data []byte) (any, error)

// PostgresReadStore persists read models in a single read_models table
// (collection, id, data JSONB). Each collection registers a decoder so that
// handlers keep working with typed models.
type PostgresReadStore struct {
	db       *sql.DB
	decoders map[string]Decoder
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{
		db:       db,
		decoders: make(map[string]Decoder),
	}
}

// RegisterDecoder registers the decoder used to materialize a collection's rows
func (rs *PostgresReadStore) RegisterDecoder(collection string, decoder Decoder) {
	rs.decoders[collection] = decoder
}

func (rs *PostgresReadStore) decode(collection string, data []byte) (any, error) {
	if decoder, ok := rs.decoders[collection]; ok {
		return decoder(data)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ReadStore] Failed to marshal %s/%s: %v", collection, id, err)
		return
	}

	_, err = rs.db.Exec(
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (collection, id) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, jsonData,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to store %s/%s: %v", collection, id, err)
	}
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool) {
	var data []byte
	err := rs.db.QueryRow(
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Printf("[ReadStore] Failed to query %s/%s: %v", collection, id, err)
		return nil, false
	}

	model, err := rs.decode(collection, data)
	if err != nil {
		log.Printf("[ReadStore] Failed to decode %s/%s: %v", collection, id, err)
		return nil, false
	}
	return model, true
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) []any {
	rows, err := rs.db.Query(
		`SELECT data FROM read_models WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to query collection %s: %v", collection, err)
		return nil
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		model, err := rs.decode(collection, data)
		if err != nil {
			continue
		}
		items = append(items, model)
	}
	return items
}

// GetFiltered retrieves items in a collection matching the predicate
func (rs *PostgresReadStore) GetFiltered(collection string, match func(any) bool) []any {
	var items []any
	for _, item := range rs.GetAll(collection) {
		if match(item) {
			items = append(items, item)
		}
	}
	return items
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) {
	_, err := rs.db.Exec(
		`DELETE FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to delete %s/%s: %v", collection, id, err)
	}
}

// Update modifies a read model using an update function
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	current, ok := rs.Get(collection, id)
	if !ok {
		return false
	}
	rs.Set(collection, id, updateFn(current))
	return true
}
