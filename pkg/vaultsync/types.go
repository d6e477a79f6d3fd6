package vaultsync

import (
	"github.com/bianoble/vaultsync/internal/engine"
	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/reconcile"
)

// Type aliases re-export engine result types as the public API.
// Users import "github.com/bianoble/vaultsync/pkg/vaultsync" and use
// vaultsync.SyncResult, vaultsync.JobResult, etc.

type Mode = engine.Mode
type SyncResult = engine.SyncResult
type JobResult = engine.JobResult
type Summary = engine.Summary
type Action = reconcile.Action
type Tally = reconcile.Tally
type ItemError = verrors.ItemError
type ImportOptions = engine.ImportOptions
type Vault = entry.Vault
type Role = entry.Role

const (
	ModeSync   = engine.ModeSync
	ModePrune  = engine.ModePrune
	ModeImport = engine.ModeImport
)
