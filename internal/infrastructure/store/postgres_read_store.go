package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/example/supplychain-recon/internal/readmodel"
	_ "github.com/lib/pq"
)

// PostgresReadStore keeps read models as one JSONB document per entity in a
// single read_models table keyed by (collection, id). Documents are decoded
// back into their typed read models on the way out so query code never sees
// raw JSON.
type PostgresReadStore struct {
	db *sql.DB
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set upserts a read model document
func (rs *PostgresReadStore) Set(collection, id string, data any) {
	doc, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ReadStore] Failed to marshal %s/%s: %v", collection, id, err)
		return
	}

	_, err = rs.db.ExecContext(context.Background(),
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = $3, updated_at = $4`,
		collection, id, doc, time.Now(),
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to upsert %s/%s: %v", collection, id, err)
	}
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool, error) {
	var doc []byte
	err := rs.db.QueryRowContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	model, err := decodeReadModel(collection, doc)
	if err != nil {
		return nil, false, err
	}
	return model, true, nil
}

// GetAll retrieves all read models in a collection
func (rs *PostgresReadStore) GetAll(collection string) ([]any, error) {
	rows, err := rs.db.QueryContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 ORDER BY updated_at DESC",
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			continue
		}
		model, err := decodeReadModel(collection, doc)
		if err != nil {
			log.Printf("[ReadStore] Skipping undecodable %s document: %v", collection, err)
			continue
		}
		items = append(items, model)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) {
	_, err := rs.db.ExecContext(context.Background(),
		"DELETE FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	)
	if err != nil {
		log.Printf("[ReadStore] Failed to delete %s/%s: %v", collection, id, err)
	}
}

// Update modifies a read model using an update function. Read-modify-write is
// safe here because a single projector owns all writes to the read store.
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	current, ok, err := rs.Get(collection, id)
	if err != nil || !ok {
		return false
	}
	rs.Set(collection, id, updateFn(current))
	return true
}

// decodeReadModel maps a collection name to its typed read model
func decodeReadModel(collection string, doc []byte) (any, error) {
	var model any
	switch collection {
	case readmodel.CollectionOrders:
		model = &readmodel.OrderReadModel{}
	case readmodel.CollectionShipments:
		model = &readmodel.ShipmentReadModel{}
	case readmodel.CollectionInventory:
		model = &readmodel.InventoryReadModel{}
	case readmodel.CollectionPayments:
		model = &readmodel.PaymentReadModel{}
	case readmodel.CollectionReturns:
		model = &readmodel.ReturnReadModel{}
	default:
		raw := map[string]any{}
		if err := json.Unmarshal(doc, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	if err := json.Unmarshal(doc, model); err != nil {
		return nil, err
	}
	return model, nil
}
