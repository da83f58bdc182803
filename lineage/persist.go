package lineage

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/siftlab/sift/errors"
)

// SQLStore is the durable mirror of the lineage graph. The in-memory Store
// stays authoritative for reads; every committed mutation is written through
// here so a restart can rebuild the arena, and Snapshot() feeds Reconcile.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a lineage persistence layer over an open database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SaveDataset inserts a dataset and its field schema, assigning its id
func (p *SQLStore) SaveDataset(ds *Dataset) error {
	tx, err := p.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	res, err := tx.Exec(
		`INSERT INTO datasets (label, description, loaded, created_at) VALUES (?, ?, ?, ?)`,
		ds.Label, ds.Description, ds.Loaded, ds.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to save dataset")
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to get dataset id")
	}
	ds.ID = id

	for i, f := range ds.Fields {
		if _, err := tx.Exec(
			`INSERT INTO dataset_fields (dataset_id, position, name, type, min_value, max_value) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, f.Name, f.Type, f.Min, f.Max,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to save field %s", f.Name)
		}
	}

	return errors.Wrap(tx.Commit(), "commit dataset")
}

// SaveDocument inserts one document, assigning its id
func (p *SQLStore) SaveDocument(datasetID int64, doc *Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document fields")
	}

	res, err := p.db.Exec(
		`INSERT INTO documents (dataset_id, fields) VALUES (?, ?)`,
		datasetID, string(fields),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save document")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get document id")
	}
	doc.ID = id
	return nil
}

// SaveMethod inserts a method row
func (p *SQLStore) SaveMethod(datasetID int64, m *Method) error {
	params := sql.NullString{String: string(m.Parameters), Valid: len(m.Parameters) > 0}

	_, err := p.db.Exec(
		`INSERT INTO methods (dataset_id, id, applied_on, method_type, parameters, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		datasetID, m.ID, m.AppliedOn, m.Type, params, m.Status, m.Error, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save method")
	}
	return nil
}

// UpdateMethod writes a method's status, result, and error back to the mirror
func (p *SQLStore) UpdateMethod(datasetID int64, m *Method) error {
	result := sql.NullString{String: string(m.Result), Valid: len(m.Result) > 0}

	res, err := p.db.Exec(
		`UPDATE methods SET status = ?, result = ?, error = ?, updated_at = ? WHERE dataset_id = ? AND id = ?`,
		m.Status, result, m.Error, m.UpdatedAt, datasetID, m.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update method")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFound("method %d", m.ID)
	}
	return nil
}

// SaveSubset inserts a subset row and its membership
func (p *SQLStore) SaveSubset(datasetID int64, sub *Subset, memberIDs []int64) error {
	tx, err := p.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	if _, err := tx.Exec(
		`INSERT INTO subsets (dataset_id, id, label, description, resulted_in, version) VALUES (?, ?, ?, ?, ?, ?)`,
		datasetID, sub.ID, sub.Label, sub.Description, sub.ResultedIn, sub.Version,
	); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to save subset")
	}

	for _, docID := range memberIDs {
		if _, err := tx.Exec(
			`INSERT INTO subset_documents (dataset_id, subset_id, document_id) VALUES (?, ?, ?)`,
			datasetID, sub.ID, docID,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to save membership of document %d", docID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit subset")
}

// UpdateSubsetInfo writes a subset's edited label, description, and version
func (p *SQLStore) UpdateSubsetInfo(datasetID int64, sub *Subset) error {
	res, err := p.db.Exec(
		`UPDATE subsets SET label = ?, description = ?, version = ? WHERE dataset_id = ? AND id = ?`,
		sub.Label, sub.Description, sub.Version, datasetID, sub.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update subset")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFound("subset %d", sub.ID)
	}
	return nil
}

// DeleteSubsets removes subset rows and their membership in one transaction.
// Used to mirror a committed cascade.
func (p *SQLStore) DeleteSubsets(datasetID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := p.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM subset_documents WHERE dataset_id = ? AND subset_id = ?`, datasetID, id); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to delete membership of subset %d", id)
		}
		if _, err := tx.Exec(`DELETE FROM subsets WHERE dataset_id = ? AND id = ?`, datasetID, id); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to delete subset %d", id)
		}
	}
	return errors.Wrap(tx.Commit(), "commit subset deletion")
}

// DeleteMethods removes method rows in one transaction.
// Used to mirror a committed cascade.
func (p *SQLStore) DeleteMethods(datasetID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := p.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM methods WHERE dataset_id = ? AND id = ?`, datasetID, id); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to delete method %d", id)
		}
	}
	return errors.Wrap(tx.Commit(), "commit method deletion")
}

// Snapshot returns the full listing of subset and method ids the mirror holds
// for one dataset, for Store.Reconcile.
func (p *SQLStore) Snapshot(datasetID int64) (Snapshot, error) {
	var subsetIDs, methodIDs []int64

	rows, err := p.db.Query(`SELECT id FROM subsets WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to list subsets")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Snapshot{}, errors.Wrap(err, "failed to scan subset id")
		}
		subsetIDs = append(subsetIDs, id)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, errors.Wrap(err, "error iterating subsets")
	}

	mrows, err := p.db.Query(`SELECT id FROM methods WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to list methods")
	}
	defer mrows.Close()
	for mrows.Next() {
		var id int64
		if err := mrows.Scan(&id); err != nil {
			return Snapshot{}, errors.Wrap(err, "failed to scan method id")
		}
		methodIDs = append(methodIDs, id)
	}
	if err := mrows.Err(); err != nil {
		return Snapshot{}, errors.Wrap(err, "error iterating methods")
	}

	return NewSnapshot(subsetIDs, methodIDs), nil
}

// ListDatasets returns all datasets in the mirror
func (p *SQLStore) ListDatasets() ([]*Dataset, error) {
	rows, err := p.db.Query(`SELECT id, label, description, loaded, created_at FROM datasets ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list datasets")
	}
	defer rows.Close()

	var out []*Dataset
	for rows.Next() {
		var ds Dataset
		if err := rows.Scan(&ds.ID, &ds.Label, &ds.Description, &ds.Loaded, &ds.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan dataset")
		}
		out = append(out, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating datasets")
	}
	return out, nil
}

// LoadStore rebuilds the in-memory arena for one dataset from the mirror
func (p *SQLStore) LoadStore(datasetID int64, logger *zap.SugaredLogger) (*Store, error) {
	ds, err := p.loadDataset(datasetID)
	if err != nil {
		return nil, err
	}

	store := NewStore(ds, logger)

	if err := p.loadDocuments(datasetID, store); err != nil {
		return nil, err
	}
	if err := p.loadMethods(datasetID, store); err != nil {
		return nil, err
	}
	if err := p.loadSubsets(datasetID, store); err != nil {
		return nil, err
	}

	if err := store.CheckIntegrity(); err != nil {
		return nil, errors.Wrapf(err, "dataset %d mirror is inconsistent", datasetID)
	}
	return store, nil
}

func (p *SQLStore) loadDataset(datasetID int64) (*Dataset, error) {
	var ds Dataset
	err := p.db.QueryRow(
		`SELECT id, label, description, loaded, created_at FROM datasets WHERE id = ?`,
		datasetID,
	).Scan(&ds.ID, &ds.Label, &ds.Description, &ds.Loaded, &ds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("dataset %d", datasetID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load dataset")
	}

	rows, err := p.db.Query(
		`SELECT name, type, min_value, max_value FROM dataset_fields WHERE dataset_id = ? ORDER BY position`,
		datasetID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load fields")
	}
	defer rows.Close()
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Name, &f.Type, &f.Min, &f.Max); err != nil {
			return nil, errors.Wrap(err, "failed to scan field")
		}
		ds.Fields = append(ds.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating fields")
	}
	return &ds, nil
}

func (p *SQLStore) loadDocuments(datasetID int64, store *Store) error {
	rows, err := p.db.Query(`SELECT id, fields FROM documents WHERE dataset_id = ? ORDER BY id`, datasetID)
	if err != nil {
		return errors.Wrap(err, "failed to load documents")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var fields string
		if err := rows.Scan(&id, &fields); err != nil {
			return errors.Wrap(err, "failed to scan document")
		}
		doc := &Document{ID: id}
		if err := json.Unmarshal([]byte(fields), &doc.Fields); err != nil {
			return errors.Wrapf(err, "failed to unmarshal fields of document %d", id)
		}
		store.AddDocument(doc)
	}
	return errors.Wrap(rows.Err(), "error iterating documents")
}

func (p *SQLStore) loadMethods(datasetID int64, store *Store) error {
	rows, err := p.db.Query(
		`SELECT id, applied_on, method_type, parameters, status, result, error, created_at, updated_at
		 FROM methods WHERE dataset_id = ? ORDER BY id`,
		datasetID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to load methods")
	}
	defer rows.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	for rows.Next() {
		var m Method
		var params, result sql.NullString
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&m.ID, &m.AppliedOn, &m.Type, &params, &m.Status, &result, &m.Error, &createdAt, &updatedAt); err != nil {
			return errors.Wrap(err, "failed to scan method")
		}
		m.CreatedAt, m.UpdatedAt = createdAt, updatedAt
		if params.Valid {
			m.Parameters = json.RawMessage(params.String)
		}
		if result.Valid {
			m.Result = json.RawMessage(result.String)
		}
		store.methods[m.ID] = &m
		store.usedBy[m.AppliedOn] = append(store.usedBy[m.AppliedOn], m.ID)
		if m.ID >= store.nextMethodID {
			store.nextMethodID = m.ID + 1
		}
	}
	return errors.Wrap(rows.Err(), "error iterating methods")
}

func (p *SQLStore) loadSubsets(datasetID int64, store *Store) error {
	rows, err := p.db.Query(
		`SELECT id, label, description, resulted_in, version FROM subsets WHERE dataset_id = ? ORDER BY id`,
		datasetID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to load subsets")
	}
	defer rows.Close()

	store.mu.Lock()
	for rows.Next() {
		var sub Subset
		var resultedIn sql.NullInt64
		if err := rows.Scan(&sub.ID, &sub.Label, &sub.Description, &resultedIn, &sub.Version); err != nil {
			store.mu.Unlock()
			return errors.Wrap(err, "failed to scan subset")
		}
		if resultedIn.Valid {
			methodID := resultedIn.Int64
			sub.ResultedIn = &methodID
			store.produced[methodID] = append(store.produced[methodID], sub.ID)
		}
		if sub.ID == RootSubsetID {
			// Root was created by NewStore; keep its persisted label
			store.subsets[RootSubsetID].Label = sub.Label
			store.subsets[RootSubsetID].Description = sub.Description
			store.subsets[RootSubsetID].Version = sub.Version
			continue
		}
		if _, ok := store.members[sub.ID]; !ok {
			store.members[sub.ID] = make(map[int64]struct{})
		}
		store.subsets[sub.ID] = &sub
		if sub.ID >= store.nextSubsetID {
			store.nextSubsetID = sub.ID + 1
		}
	}
	if err := rows.Err(); err != nil {
		store.mu.Unlock()
		return errors.Wrap(err, "error iterating subsets")
	}
	store.mu.Unlock()

	mrows, err := p.db.Query(
		`SELECT subset_id, document_id FROM subset_documents
		 WHERE dataset_id = ? AND subset_id != ?`,
		datasetID, RootSubsetID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to load membership")
	}
	defer mrows.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	for mrows.Next() {
		var subsetID, docID int64
		if err := mrows.Scan(&subsetID, &docID); err != nil {
			return errors.Wrap(err, "failed to scan membership")
		}
		store.members[subsetID][docID] = struct{}{}
	}
	for id, set := range store.members {
		store.subsets[id].DocumentCount = len(set)
	}
	return errors.Wrap(mrows.Err(), "error iterating membership")
}
