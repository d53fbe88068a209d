package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"atelier/pkg/logger"
	"atelier/pkg/models"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

// Key namespaces:
//
//	history:<agentID>           one JSON message array per agent
//	source:<sourceID>           source metadata
//	chunk:<sourceID>:%06d       embedded chunk, index-ordered
//	project:<key>               project metadata
const (
	historyPrefix = "history:"
	sourcePrefix  = "source:"
	chunkPrefix   = "chunk:"
	projectPrefix = "project:"
)

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "err", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// SaveHistory writes an agent's full message history as one value.
// Callers own ordering; the store treats the array as opaque.
func SaveHistory(agentID string, msgs []models.Message) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	key := []byte(historyPrefix + agentID)
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_history_failed", "agent", agentID, "err", err)
		return err
	}
	logger.Debug("history_saved", "agent", agentID, "messages", len(msgs))
	return nil
}

// GetHistory loads an agent's history; a never-persisted agent yields an
// empty slice, not an error.
func GetHistory(agentID string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(historyPrefix + agentID))
	if err == pebble.ErrNotFound {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var msgs []models.Message
	if err := json.Unmarshal(v, &msgs); err != nil {
		return nil, fmt.Errorf("invalid history JSON: %w", err)
	}
	return msgs, nil
}

// DeleteHistory removes an agent's persisted history immediately.
func DeleteHistory(agentID string) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Delete([]byte(historyPrefix+agentID), pebble.Sync); err != nil {
		logger.Error("delete_history_failed", "agent", agentID, "err", err)
		return err
	}
	logger.Info("history_deleted", "agent", agentID)
	return nil
}

// ListHistoryAgents returns the agent ids with persisted history.
func ListHistoryAgents() ([]string, error) {
	keys, err := listKeys(historyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(historyPrefix):])
	}
	return out, nil
}

// SaveSource stores source metadata.
func SaveSource(src models.Source) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source: %w", err)
	}
	if err := db.Set([]byte(sourcePrefix+src.ID), data, pebble.Sync); err != nil {
		logger.Error("save_source_failed", "source", src.ID, "err", err)
		return err
	}
	logger.Info("source_saved", "source", src.ID, "chunks", src.ChunkCount)
	return nil
}

// GetSource loads one source's metadata.
func GetSource(id string) (models.Source, error) {
	var src models.Source
	if db == nil {
		return src, notOpen()
	}
	v, closer, err := db.Get([]byte(sourcePrefix + id))
	if err != nil {
		return src, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &src); err != nil {
		return src, fmt.Errorf("invalid source JSON: %w", err)
	}
	return src, nil
}

// ListSources returns all stored sources.
func ListSources() ([]models.Source, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte(sourcePrefix)
	var out []models.Source
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var src models.Source
		if err := json.Unmarshal(iter.Value(), &src); err != nil {
			logger.Warn("skip_invalid_source", "key", string(iter.Key()), "err", err)
			continue
		}
		out = append(out, src)
	}
	return out, iter.Error()
}

// DeleteSource removes a source's metadata and every chunk under it.
func DeleteSource(id string) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Delete([]byte(sourcePrefix+id), pebble.Sync); err != nil {
		return err
	}
	if err := DeleteChunks(id); err != nil {
		logger.Error("delete_source_chunks_failed", "source", id, "err", err)
		return err
	}
	logger.Info("source_deleted", "source", id)
	return nil
}

// DeleteChunks removes every chunk stored under a source id. Ingestion
// uses it to clean up after a partial failure, before the source record
// exists.
func DeleteChunks(sourceID string) error {
	if db == nil {
		return notOpen()
	}
	start := []byte(chunkPrefix + sourceID + ":")
	end := append(append([]byte(nil), start...), 0xff)
	return db.DeleteRange(start, end, pebble.Sync)
}

// SaveChunk stores one embedded chunk under its source, index-ordered.
func SaveChunk(c models.Chunk) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	key := fmt.Sprintf("%s%s:%06d", chunkPrefix, c.SourceID, c.Index)
	return db.Set([]byte(key), data, pebble.Sync)
}

// ListChunks returns a source's chunks in index order.
func ListChunks(sourceID string) ([]models.Chunk, error) {
	return scanChunks(chunkPrefix + sourceID + ":")
}

// ListAllChunks returns every stored chunk. The similarity index scans
// these for brute-force ranking.
func ListAllChunks() ([]models.Chunk, error) {
	return scanChunks(chunkPrefix)
}

func scanChunks(prefix string) ([]models.Chunk, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	p := []byte(prefix)
	var out []models.Chunk
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		var c models.Chunk
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			logger.Warn("skip_invalid_chunk", "key", string(iter.Key()), "err", err)
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// SaveProject stores project metadata under its key.
func SaveProject(p models.Project) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := db.Set([]byte(projectPrefix+p.Key), data, pebble.Sync); err != nil {
		logger.Error("save_project_failed", "project", p.Key, "err", err)
		return err
	}
	logger.Info("project_saved", "project", p.Key)
	return nil
}

// GetProject loads one project; pebble.ErrNotFound when absent.
func GetProject(key string) (models.Project, error) {
	var p models.Project
	if db == nil {
		return p, notOpen()
	}
	v, closer, err := db.Get([]byte(projectPrefix + key))
	if err != nil {
		return p, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &p); err != nil {
		return p, fmt.Errorf("invalid project JSON: %w", err)
	}
	return p, nil
}

// DeleteProject removes project metadata.
func DeleteProject(key string) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Delete([]byte(projectPrefix+key), pebble.Sync); err != nil {
		return err
	}
	logger.Info("project_deleted", "project", key)
	return nil
}

// ListProjects returns all stored projects.
func ListProjects() ([]models.Project, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte(projectPrefix)
	var out []models.Project
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var p models.Project
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			logger.Warn("skip_invalid_project", "key", string(iter.Key()), "err", err)
			continue
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

// IsNotFound reports whether err is the store's missing-key error.
func IsNotFound(err error) bool { return err == pebble.ErrNotFound }

func listKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	p := []byte(prefix)
	var out []string
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}
