// Package storage persists computed metrics and order book snapshots.
package storage
