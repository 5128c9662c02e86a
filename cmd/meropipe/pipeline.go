package main

import (
	"fmt"
	"log/slog"

	"github.com/aecintel/meropipe/blob"
	"github.com/aecintel/meropipe/config"
	"github.com/aecintel/meropipe/extractor"
	"github.com/aecintel/meropipe/ingest"
	"github.com/aecintel/meropipe/ner"
	"github.com/aecintel/meropipe/observability"
	"github.com/aecintel/meropipe/ocr"
	"github.com/aecintel/meropipe/store"
	"github.com/aecintel/meropipe/textembed"
)

// app bundles the wired pipeline and everything that needs closing.
type app struct {
	cfg     *config.Config
	service *ingest.Service
	events  *observability.EventLog
	sqlite  *store.SQLite
}

// buildApp wires the pipeline from config: blob source over the drop
// directory, extraction router, collaborator clients, document store, and
// the event log (SQLite-backed stores share their handle with it).
func buildApp(cfg *config.Config) (*app, error) {
	logger := slog.Default()

	var docs store.DocumentStore
	var sqliteStore *store.SQLite
	var events *observability.EventLog
	var err error

	switch cfg.Store.Backend {
	case config.StoreREST:
		docs, err = store.NewREST(cfg.Store.REST)
		if err != nil {
			return nil, err
		}
		// Outcome events still go to a local database.
		sqliteStore, err = store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	default:
		sqliteStore, err = store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		docs = sqliteStore
	}
	events, err = observability.NewEventLog(sqliteStore.DB(), 256, logger)
	if err != nil {
		sqliteStore.Close()
		return nil, fmt.Errorf("event log: %w", err)
	}

	var engine ocr.Engine
	if cfg.OCR.Endpoint != "" {
		engine, err = ocr.New(cfg.OCR)
		if err != nil {
			return nil, err
		}
	}

	ext := extractor.New(extractor.Config{
		ChunkSize: cfg.ChunkSize,
		DocIntel:  cfg.DocIntel,
		OCR:       engine,
	})

	embedder, err := textembed.New(cfg.Embed)
	if err != nil {
		return nil, err
	}

	service, err := ingest.New(cfg.Ingest,
		blob.NewFSSource(cfg.DataDir), ext, ner.New(cfg.NER), embedder, docs, events)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, service: service, events: events, sqlite: sqliteStore}, nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
}
